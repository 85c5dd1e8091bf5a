// Package tracing wires OpenTelemetry for Helios.
//
// New installs a global tracer provider exporting over OTLP gRPC when tracing
// is enabled, and a noop provider otherwise. Engine components obtain tracers
// through otel.Tracer, so they need no reference to this package beyond the
// span helpers:
//
//	ctx, span := otel.Tracer(tracing.InstrumentationName).Start(ctx, "scheduler.tick")
//	defer span.End()
//	...
//	tracing.SetStatus(span, err)
//
// Sampling is parent-based around one of "always", "never" or "ratio".
// Inject and Extract carry W3C trace context over HTTP headers and Kafka-style
// string maps.
package tracing
