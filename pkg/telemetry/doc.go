// Package telemetry groups the observability packages used by Helios.
//
//   - logging: log/slog setup, level hot reload, attribute redaction
//   - metrics: Prometheus collectors for executions, compliance and delivery
//   - tracing: OpenTelemetry provider and span helpers
//   - health: liveness and readiness checks
package telemetry
