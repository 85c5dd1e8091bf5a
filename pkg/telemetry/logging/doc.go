// Package logging configures the process-wide log/slog logger.
//
// # Overview
//
// Setup builds a JSON or text handler from config.LoggingConfig and installs
// it as slog.Default. Components then derive their own loggers:
//
//	logger := slog.Default().With("component", "scheduler")
//
// The minimum level lives in a slog.LevelVar so the config watcher can change
// it without rebuilding the handler (see SetLevel).
//
// # Redaction
//
// Attribute values whose key contains one of the configured redact keys
// ("password", "token", "dsn", ...) are replaced by "***". String values that
// look like bearer credentials or URLs with embedded passwords are scrubbed
// regardless of key.
//
// # Context
//
// WithPolicyID, WithActor and WithRequestID attach identifiers to a context;
// FromContext returns a logger carrying whichever of them are present.
package logging
