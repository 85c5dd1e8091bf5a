package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "api.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validatePersistence(&cfg.Persistence)...)
	errs = append(errs, validateTransport(&cfg.Transport)...)
	errs = append(errs, validateNotification(&cfg.Notification)...)
	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

var riskClasses = []string{"LOW", "STANDARD", "ELEVATED", "CRITICAL"}

func validateEngine(cfg *EngineConfig) []FieldError {
	var errs []FieldError

	if cfg.Scheduler.Interval < 10*time.Millisecond {
		errs = append(errs, FieldError{Field: "engine.scheduler.interval", Message: "interval must be at least 10ms"})
	}
	if cfg.Scheduler.BatchSize < 1 {
		errs = append(errs, FieldError{Field: "engine.scheduler.batch_size", Message: "batch size must be positive"})
	}
	if cfg.Scheduler.MaxParallel < 1 {
		errs = append(errs, FieldError{Field: "engine.scheduler.max_parallel", Message: "max parallel must be positive"})
	}
	if cfg.Scheduler.EvaluationTimeout <= 0 {
		errs = append(errs, FieldError{Field: "engine.scheduler.evaluation_timeout", Message: "evaluation timeout must be positive"})
	}

	if cfg.Compliance.RecentCapacity < 1 {
		errs = append(errs, FieldError{Field: "engine.compliance.recent_capacity", Message: "capacity must be positive"})
	}
	errs = append(errs, validateThresholds("engine.compliance.default_thresholds", cfg.Compliance.DefaultThresholds)...)
	for class, th := range cfg.Compliance.Thresholds {
		field := "engine.compliance.thresholds." + class
		if !contains(riskClasses, strings.ToUpper(class)) {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("unknown risk class (must be one of %s)", strings.Join(riskClasses, ", "))})
			continue
		}
		errs = append(errs, validateThresholds(field, th)...)
	}

	if cfg.Audit.Capacity < 1 {
		errs = append(errs, FieldError{Field: "engine.audit.capacity", Message: "capacity must be positive"})
	}
	if cfg.Audit.DefaultPageLimit < 1 {
		errs = append(errs, FieldError{Field: "engine.audit.default_page_limit", Message: "page limit must be positive"})
	}
	if cfg.Audit.Archive.Enabled {
		archive := cfg.Audit.Archive
		if archive.Backend != "memory" && archive.Backend != "sqlite" {
			errs = append(errs, FieldError{Field: "engine.audit.archive.backend", Message: "backend must be one of: memory, sqlite"})
		}
		if archive.Backend == "sqlite" && archive.SQLitePath == "" {
			errs = append(errs, FieldError{Field: "engine.audit.archive.sqlite_path", Message: "path is required for sqlite backend"})
		}
		if archive.Retention.Days < 0 {
			errs = append(errs, FieldError{Field: "engine.audit.archive.retention.days", Message: "retention days must be non-negative"})
		}
		if archive.Retention.MaxRecords < 0 {
			errs = append(errs, FieldError{Field: "engine.audit.archive.retention.max_records", Message: "max records must be non-negative"})
		}
		if _, err := cron.ParseStandard(archive.Retention.Schedule); err != nil {
			errs = append(errs, FieldError{Field: "engine.audit.archive.retention.schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
		}
	}

	if cfg.Metrics.WindowSize < 1 {
		errs = append(errs, FieldError{Field: "engine.metrics.window_size", Message: "window size must be positive"})
	}
	if cfg.EventBus.BufferSize < 1 {
		errs = append(errs, FieldError{Field: "engine.event_bus.buffer_size", Message: "buffer size must be positive"})
	}

	return errs
}

func validateThresholds(field string, th ThresholdConfig) []FieldError {
	var errs []FieldError
	for name, v := range map[string]float64{"critical": th.Critical, "high": th.High, "medium": th.Medium} {
		if v < 0 || v > 1 {
			errs = append(errs, FieldError{Field: field + "." + name, Message: "threshold must be between 0 and 1"})
		}
	}
	if !(th.Critical >= th.High && th.High >= th.Medium) {
		errs = append(errs, FieldError{Field: field, Message: "thresholds must satisfy critical >= high >= medium"})
	}
	return errs
}

func validatePersistence(cfg *PersistenceConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "yaml":
		if cfg.YAML.Dir == "" {
			errs = append(errs, FieldError{Field: "persistence.yaml.dir", Message: "directory is required for yaml backend"})
		}
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "persistence.sqlite.path", Message: "path is required for sqlite backend"})
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{Field: "persistence.postgres.dsn", Message: "dsn is required for postgres backend"})
		}
		if cfg.Postgres.MaxConns < 1 {
			errs = append(errs, FieldError{Field: "persistence.postgres.max_conns", Message: "max conns must be positive"})
		}
	default:
		errs = append(errs, FieldError{Field: "persistence.backend", Message: "backend must be one of: memory, yaml, sqlite, postgres"})
	}

	return errs
}

func validateTransport(cfg *TransportConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError

	if cfg.ReconnectDelay <= 0 {
		errs = append(errs, FieldError{Field: "transport.reconnect_delay", Message: "reconnect delay must be positive"})
	}
	if cfg.SendTimeout <= 0 {
		errs = append(errs, FieldError{Field: "transport.send_timeout", Message: "send timeout must be positive"})
	}

	switch cfg.Sink {
	case "websocket":
		if cfg.WebSocket.URL == "" {
			errs = append(errs, FieldError{Field: "transport.websocket.url", Message: "url is required for websocket sink"})
		} else if u, err := url.Parse(cfg.WebSocket.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, FieldError{Field: "transport.websocket.url", Message: "url must use ws or wss scheme"})
		}
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			errs = append(errs, FieldError{Field: "transport.kafka.brokers", Message: "at least one broker is required"})
		}
		if cfg.Kafka.Topic == "" {
			errs = append(errs, FieldError{Field: "transport.kafka.topic", Message: "topic is required"})
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{Field: "transport.redis.addr", Message: "address is required for redis sink"})
		}
		if cfg.Redis.Channel == "" {
			errs = append(errs, FieldError{Field: "transport.redis.channel", Message: "channel is required"})
		}
	default:
		errs = append(errs, FieldError{Field: "transport.sink", Message: "sink must be one of: websocket, kafka, redis"})
	}

	return errs
}

func validateNotification(cfg *NotificationConfig) []FieldError {
	var errs []FieldError

	if !contains([]string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}, strings.ToUpper(cfg.MinSeverity)) {
		errs = append(errs, FieldError{Field: "notification.min_severity", Message: "severity must be one of: LOW, MEDIUM, HIGH, CRITICAL"})
	}
	if cfg.Webhook.URL != "" {
		if u, err := url.Parse(cfg.Webhook.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, FieldError{Field: "notification.webhook.url", Message: "url must be an absolute http(s) URL"})
		}
	}
	if cfg.Webhook.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "notification.webhook.timeout", Message: "timeout must be positive"})
	}

	return errs
}

func validateAPI(cfg *APIConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "api.listen_address", Message: "listen address is required"})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "api.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "api.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "api.shutdown_timeout", Message: "shutdown timeout must be positive"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if !contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(cfg.Logging.Level)) {
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: "level must be one of: debug, info, warn, error"})
	}
	if !contains([]string{"json", "text"}, strings.ToLower(cfg.Logging.Format)) {
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: "format must be one of: json, text"})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with /"})
	}

	if cfg.Tracing.Enabled {
		if !contains([]string{"always", "never", "ratio"}, cfg.Tracing.Sampler) {
			errs = append(errs, FieldError{Field: "telemetry.tracing.sampler", Message: "sampler must be one of: always, never, ratio"})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be between 0 and 1"})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
		}
	}

	return errs
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
