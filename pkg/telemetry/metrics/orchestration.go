package metrics

import (
	"time"

	"mercator-hq/helios/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// OrchestrationMetrics tracks the scheduler loop.
type OrchestrationMetrics struct {
	ticksTotal    prometheus.Counter
	skippedTotal  prometheus.Counter
	tickDuration  prometheus.Histogram
	selectedTotal prometheus.Counter
	queueDepth    prometheus.Gauge
	inFlight      prometheus.Gauge
}

// NewOrchestrationMetrics creates and registers scheduler metrics.
func NewOrchestrationMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *OrchestrationMetrics {
	om := &OrchestrationMetrics{
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "scheduler_ticks_total",
			Help:      "Total number of completed scheduler ticks",
		}),
		skippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "scheduler_ticks_skipped_total",
			Help:      "Ticks skipped because the previous tick was still running",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Duration of scheduler ticks in seconds",
			Buckets:   cfg.DurationBuckets,
		}),
		selectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "scheduler_selected_total",
			Help:      "Total number of policies selected for evaluation",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "scheduler_queue_depth",
			Help:      "Eligible policies not evaluated in the last tick",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "executions_in_flight",
			Help:      "Policy executions currently in flight",
		}),
	}

	registry.MustRegister(om.ticksTotal, om.skippedTotal, om.tickDuration, om.selectedTotal, om.queueDepth, om.inFlight)
	return om
}

// RecordTick records one completed tick.
func (om *OrchestrationMetrics) RecordTick(duration time.Duration, selected, queueDepth int) {
	om.ticksTotal.Inc()
	om.tickDuration.Observe(duration.Seconds())
	om.selectedTotal.Add(float64(selected))
	om.queueDepth.Set(float64(queueDepth))
}
