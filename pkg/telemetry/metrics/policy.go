package metrics

import (
	"time"

	"mercator-hq/helios/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// PolicyMetrics tracks policy executions and the policy inventory.
//
// Metrics:
//   - helios_engine_executions_total: executions by outcome
//   - helios_engine_execution_duration_seconds: execution duration
//   - helios_engine_policies: policies by status
type PolicyMetrics struct {
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	policies          *prometheus.GaugeVec
}

// NewPolicyMetrics creates and registers policy metrics.
func NewPolicyMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PolicyMetrics {
	pm := &PolicyMetrics{
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "executions_total",
				Help:      "Total number of policy executions",
			},
			[]string{"outcome"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "execution_duration_seconds",
				Help:      "Duration of policy executions in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"outcome"},
		),
		policies: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policies",
				Help:      "Number of policies by status",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(pm.executionsTotal, pm.executionDuration, pm.policies)
	return pm
}

// RecordExecution records one execution.
func (pm *PolicyMetrics) RecordExecution(outcome string, duration time.Duration) {
	pm.executionsTotal.WithLabelValues(outcome).Inc()
	pm.executionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// SetCounts replaces the per-status gauge values.
func (pm *PolicyMetrics) SetCounts(counts map[string]int) {
	pm.policies.Reset()
	for status, n := range counts {
		pm.policies.WithLabelValues(status).Set(float64(n))
	}
}
