// Package metrics provides Prometheus metrics collection for Helios.
//
// # Overview
//
// A Collector registers every engine metric on a caller-provided registry
// under the configured namespace and subsystem. Metrics are grouped by
// concern:
//
//   - Policy metrics: executions by outcome, execution duration, policies by status
//   - Compliance metrics: violations by severity, resolutions, approvals by decision, compliance score
//   - Orchestration metrics: ticks, tick duration, queue depth, in-flight executions
//   - Delivery metrics: audit appends and evictions, archive writes, bus drops, transport retries, notifications
//
// # Nil Safety
//
// Every Record/Set method is safe to call on a nil *Collector, so components
// accept an optional collector and never branch on it:
//
//	var c *metrics.Collector // metrics disabled
//	c.RecordExecution("SUCCESS", 12*time.Millisecond) // no-op
//
// # Usage
//
//	registry := prometheus.NewRegistry()
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, registry)
//	router.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// # Cardinality
//
// Labels derived from runtime identifiers (subscriber names, sink names) go
// through a CardinalityLimiter; label sets beyond the limit are folded into
// "other".
package metrics
