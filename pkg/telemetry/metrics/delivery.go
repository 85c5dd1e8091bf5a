package metrics

import (
	"mercator-hq/helios/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// DeliveryMetrics tracks the audit trail and outbound event delivery.
type DeliveryMetrics struct {
	auditAppends        *prometheus.CounterVec
	auditEvictions      prometheus.Counter
	archiveWrites       *prometheus.CounterVec
	eventsPublished     *prometheus.CounterVec
	eventsDropped       *prometheus.CounterVec
	transportSends      *prometheus.CounterVec
	transportReconnects *prometheus.CounterVec
	notifications       *prometheus.CounterVec
}

// NewDeliveryMetrics creates and registers delivery metrics.
func NewDeliveryMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DeliveryMetrics {
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	dm := &DeliveryMetrics{
		auditAppends: counterVec("audit_records_total", "Total number of audit records appended", "action"),
		auditEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "audit_evictions_total",
			Help:      "Audit records evicted from the in-memory ledger",
		}),
		archiveWrites:       counterVec("audit_archive_writes_total", "Audit archive writes by status", "status"),
		eventsPublished:     counterVec("events_published_total", "Events published on the bus", "kind"),
		eventsDropped:       counterVec("events_dropped_total", "Events dropped from full subscriber queues", "subscriber"),
		transportSends:      counterVec("transport_sends_total", "Transport delivery attempts", "sink", "status"),
		transportReconnects: counterVec("transport_reconnects_total", "Transport reconnect attempts", "sink"),
		notifications:       counterVec("notifications_total", "Notifications dispatched", "notifier", "status"),
	}

	registry.MustRegister(
		dm.auditAppends,
		dm.auditEvictions,
		dm.archiveWrites,
		dm.eventsPublished,
		dm.eventsDropped,
		dm.transportSends,
		dm.transportReconnects,
		dm.notifications,
	)
	return dm
}
