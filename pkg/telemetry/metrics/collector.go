package metrics

import (
	"fmt"
	"sync"
	"time"

	"mercator-hq/helios/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMaxCardinality bounds unique label sets for identifier labels.
const DefaultMaxCardinality = 1000

// Collector owns every Helios metric, grouped into policy, compliance,
// orchestration and delivery families, all named helios_engine_*.
//
// All methods are safe for concurrent use. A nil *Collector is valid and
// records nothing, so components take an optional collector and call it
// unconditionally:
//
//	var c *metrics.Collector // metrics disabled
//	c.RecordTick(d, 3, 0)    // no-op
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	policy        *PolicyMetrics
	compliance    *ComplianceMetrics
	orchestration *OrchestrationMetrics
	delivery      *DeliveryMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector and registers its metrics on registry.
// If registry is nil a fresh registry is created; pass a dedicated registry
// in tests so metrics from different cases do not collide.
//
// Identifier labels such as subscriber or sink names are guarded by a
// CardinalityLimiter; label sets beyond the limit are dropped rather than
// registered.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = append([]float64(nil), config.DefaultDurationBuckets...)
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		policy:             NewPolicyMetrics(cfg, registry),
		compliance:         NewComplianceMetrics(cfg, registry),
		orchestration:      NewOrchestrationMetrics(cfg, registry),
		delivery:           NewDeliveryMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(DefaultMaxCardinality),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordExecution records a completed policy execution.
func (c *Collector) RecordExecution(outcome string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.policy.RecordExecution(outcome, duration)
}

// SetPolicyCounts replaces the policies-by-status gauge.
func (c *Collector) SetPolicyCounts(counts map[string]int) {
	if !c.enabled() {
		return
	}
	c.policy.SetCounts(counts)
}

// RecordViolation records a detected violation.
func (c *Collector) RecordViolation(severity string) {
	if !c.enabled() {
		return
	}
	c.compliance.violationsTotal.WithLabelValues(severity).Inc()
}

// RecordViolationResolved records a violation reaching RESOLVED.
func (c *Collector) RecordViolationResolved(severity string) {
	if !c.enabled() {
		return
	}
	c.compliance.resolvedTotal.WithLabelValues(severity).Inc()
}

// RecordApproval records an approval decision ("APPROVED" or "REJECTED").
func (c *Collector) RecordApproval(decision string) {
	if !c.enabled() {
		return
	}
	c.compliance.approvalsTotal.WithLabelValues(decision).Inc()
}

// SetComplianceScore records the rolling compliance score (0-100).
func (c *Collector) SetComplianceScore(score float64) {
	if !c.enabled() {
		return
	}
	c.compliance.score.Set(score)
}

// RecordTick records one scheduler tick.
func (c *Collector) RecordTick(duration time.Duration, selected, queueDepth int) {
	if !c.enabled() {
		return
	}
	c.orchestration.RecordTick(duration, selected, queueDepth)
}

// RecordTickSkipped records a tick skipped because the previous one was
// still running.
func (c *Collector) RecordTickSkipped() {
	if !c.enabled() {
		return
	}
	c.orchestration.skippedTotal.Inc()
}

// SetInFlight records the number of executions currently in flight.
func (c *Collector) SetInFlight(n int64) {
	if !c.enabled() {
		return
	}
	c.orchestration.inFlight.Set(float64(n))
}

// RecordAuditAppend records an audit append, and an eviction if one occurred.
func (c *Collector) RecordAuditAppend(action string, evicted bool) {
	if !c.enabled() {
		return
	}
	c.delivery.auditAppends.WithLabelValues(action).Inc()
	if evicted {
		c.delivery.auditEvictions.Inc()
	}
}

// RecordArchiveWrite records an archive write with status "success",
// "error" or "dropped".
func (c *Collector) RecordArchiveWrite(status string) {
	if !c.enabled() {
		return
	}
	c.delivery.archiveWrites.WithLabelValues(status).Inc()
}

// RecordEventPublished records a bus publication.
func (c *Collector) RecordEventPublished(kind string) {
	if !c.enabled() {
		return
	}
	c.delivery.eventsPublished.WithLabelValues(kind).Inc()
}

// RecordEventDropped records an event dropped from a subscriber queue.
func (c *Collector) RecordEventDropped(subscriber string) {
	if !c.enabled() {
		return
	}
	c.delivery.eventsDropped.WithLabelValues(c.limit("subscriber", subscriber)).Inc()
}

// RecordTransportSend records a transport delivery attempt with status
// "success" or "error".
func (c *Collector) RecordTransportSend(sink, status string) {
	if !c.enabled() {
		return
	}
	c.delivery.transportSends.WithLabelValues(c.limit("sink", sink), status).Inc()
}

// RecordTransportReconnect records a reconnect attempt.
func (c *Collector) RecordTransportReconnect(sink string) {
	if !c.enabled() {
		return
	}
	c.delivery.transportReconnects.WithLabelValues(c.limit("sink", sink)).Inc()
}

// RecordNotification records a notification dispatch.
func (c *Collector) RecordNotification(notifier, status string) {
	if !c.enabled() {
		return
	}
	c.delivery.notifications.WithLabelValues(c.limit("notifier", notifier), status).Inc()
}

func (c *Collector) limit(label, value string) string {
	if c.cardinalityLimiter.Allow(fmt.Sprintf("%s:%s", label, value)) {
		return value
	}
	return "other"
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is already known or still fits under the
// limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
