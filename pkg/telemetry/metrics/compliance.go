package metrics

import (
	"mercator-hq/helios/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ComplianceMetrics tracks violations, approvals and the compliance score.
type ComplianceMetrics struct {
	violationsTotal *prometheus.CounterVec
	resolvedTotal   *prometheus.CounterVec
	approvalsTotal  *prometheus.CounterVec
	score           prometheus.Gauge
}

// NewComplianceMetrics creates and registers compliance metrics.
func NewComplianceMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ComplianceMetrics {
	cm := &ComplianceMetrics{
		violationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "violations_total",
				Help:      "Total number of detected violations",
			},
			[]string{"severity"},
		),
		resolvedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "violations_resolved_total",
				Help:      "Total number of resolved violations",
			},
			[]string{"severity"},
		),
		approvalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "approval_decisions_total",
				Help:      "Total number of approval decisions",
			},
			[]string{"decision"},
		),
		score: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "compliance_score",
				Help:      "Rolling compliance score (0-100)",
			},
		),
	}

	registry.MustRegister(cm.violationsTotal, cm.resolvedTotal, cm.approvalsTotal, cm.score)
	return cm
}
