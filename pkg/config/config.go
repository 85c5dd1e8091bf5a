package config

import "time"

// Config is the root configuration structure for Helios.
type Config struct {
	// Engine configures the in-process components: scheduler, compliance
	// monitor, audit ledger, rolling metrics and the event bus.
	Engine EngineConfig `yaml:"engine"`

	// Persistence selects where policies are stored between restarts.
	Persistence PersistenceConfig `yaml:"persistence"`

	// Transport pushes bus events to a remote channel.
	Transport TransportConfig `yaml:"transport"`

	// Notification alerts external systems about violations and decisions.
	Notification NotificationConfig `yaml:"notification"`

	// API configures the HTTP wrapper around the engine.
	API APIConfig `yaml:"api"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig groups the engine component settings.
type EngineConfig struct {
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Compliance ComplianceConfig `yaml:"compliance"`
	Audit      AuditConfig      `yaml:"audit"`
	Metrics    RollingConfig    `yaml:"metrics"`
	EventBus   EventBusConfig   `yaml:"event_bus"`
}

// SchedulerConfig configures the orchestration loop.
type SchedulerConfig struct {
	// Interval between ticks.
	// Default: 3s
	Interval time.Duration `yaml:"interval"`

	// BatchSize is the maximum number of policies evaluated per tick.
	// Hot-reloadable.
	// Default: 10
	BatchSize int `yaml:"batch_size"`

	// MaxParallel bounds concurrent evaluations inside one tick.
	// Default: 4
	MaxParallel int `yaml:"max_parallel"`

	// EvaluationTimeout bounds a single evaluator call.
	// Default: 10s
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`

	// AutoStart starts ticking when the engine opens.
	// Default: false
	AutoStart bool `yaml:"auto_start"`
}

// ThresholdConfig maps confidence to severity for one risk class. A
// confidence at or above a threshold yields that severity; below Medium is
// LOW.
type ThresholdConfig struct {
	Critical float64 `yaml:"critical"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
}

// ComplianceConfig configures the compliance monitor.
type ComplianceConfig struct {
	// RecentCapacity bounds the recent-violations view.
	// Default: 50
	RecentCapacity int `yaml:"recent_capacity"`

	// DefaultThresholds apply to every risk class without an override.
	// Default: {critical: 0.9, high: 0.75, medium: 0.5}
	DefaultThresholds ThresholdConfig `yaml:"default_thresholds"`

	// Thresholds overrides the default row per risk class
	// (LOW, STANDARD, ELEVATED, CRITICAL).
	Thresholds map[string]ThresholdConfig `yaml:"thresholds"`
}

// AuditConfig configures the audit ledger.
type AuditConfig struct {
	// Capacity is the number of records kept in memory.
	// Default: 100
	Capacity int `yaml:"capacity"`

	// DefaultPageLimit is used when a query gives no limit.
	// Default: 100
	DefaultPageLimit int `yaml:"default_page_limit"`

	// Archive stores records evicted from memory.
	Archive ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig configures the audit archive.
type ArchiveConfig struct {
	// Enabled controls whether evicted records are archived.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Backend selects the archive store.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLitePath is the archive database file.
	// Default: "data/audit.db"
	SQLitePath string `yaml:"sqlite_path"`

	// BufferSize is the async archive queue length.
	// Default: 1000
	BufferSize int `yaml:"buffer_size"`

	// WriteTimeout bounds one archive write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Retention prunes the archive.
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig configures archive pruning.
type RetentionConfig struct {
	// Days keeps archived records for this many days (0 = forever).
	// Default: 90
	Days int `yaml:"days"`

	// MaxRecords caps the archive size (0 = unlimited).
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`

	// Schedule is the cron expression for pruning.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`
}

// RollingConfig configures the metrics aggregator.
type RollingConfig struct {
	// WindowSize is the capacity of every rolling window.
	// Default: 20
	WindowSize int `yaml:"window_size"`
}

// EventBusConfig configures the event bus.
type EventBusConfig struct {
	// BufferSize is the per-subscriber queue length.
	// Default: 100
	BufferSize int `yaml:"buffer_size"`
}

// PersistenceConfig selects and configures the policy persistence backend.
type PersistenceConfig struct {
	// Backend is one of "memory", "yaml", "sqlite", "postgres".
	// Default: "memory"
	Backend string `yaml:"backend"`

	YAML     YAMLStoreConfig     `yaml:"yaml"`
	SQLite   SQLiteStoreConfig   `yaml:"sqlite"`
	Postgres PostgresStoreConfig `yaml:"postgres"`
}

// YAMLStoreConfig configures the YAML directory backend.
type YAMLStoreConfig struct {
	// Dir holds one file per policy.
	// Default: "data/policies"
	Dir string `yaml:"dir"`
}

// SQLiteStoreConfig configures the SQLite backend.
type SQLiteStoreConfig struct {
	// Path is the database file.
	// Default: "data/policies.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresStoreConfig configures the PostgreSQL backend.
type PostgresStoreConfig struct {
	// DSN is a pgx connection string.
	DSN string `yaml:"dsn"`

	// MaxConns caps the pool size.
	// Default: 10
	MaxConns int32 `yaml:"max_conns"`

	// ConnectTimeout bounds the initial ping.
	// Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// TransportConfig configures remote event push.
type TransportConfig struct {
	// Enabled controls whether events are pushed.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sink is one of "websocket", "kafka", "redis".
	// Default: "websocket"
	Sink string `yaml:"sink"`

	// ReconnectDelay is the fixed delay between reconnect attempts.
	// Default: 5s
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// SendTimeout bounds one send.
	// Default: 5s
	SendTimeout time.Duration `yaml:"send_timeout"`

	// Kinds limits pushed event kinds (empty = all).
	Kinds []string `yaml:"kinds"`

	WebSocket WebSocketSinkConfig `yaml:"websocket"`
	Kafka     KafkaSinkConfig     `yaml:"kafka"`
	Redis     RedisSinkConfig     `yaml:"redis"`
}

// WebSocketSinkConfig configures the WebSocket sink.
type WebSocketSinkConfig struct {
	URL string `yaml:"url"`
}

// KafkaSinkConfig configures the Kafka sink.
type KafkaSinkConfig struct {
	Brokers []string `yaml:"brokers"`

	// Topic receives every event, keyed by policy id.
	// Default: "helios.events"
	Topic string `yaml:"topic"`
}

// RedisSinkConfig configures the Redis pub/sub sink.
type RedisSinkConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Channel receives every event.
	// Default: "helios:events"
	Channel string `yaml:"channel"`
}

// NotificationConfig configures external alerting.
type NotificationConfig struct {
	// Enabled controls whether notifications are dispatched.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// MinSeverity filters violation notifications.
	// Default: "HIGH"
	MinSeverity string `yaml:"min_severity"`

	Webhook WebhookConfig `yaml:"webhook"`

	// Log writes notifications to the application log.
	// Default: true
	Log bool `yaml:"log"`
}

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	// URL receives a JSON POST per notification (empty disables).
	URL string `yaml:"url"`

	// Timeout bounds one POST.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	// Enabled controls whether the API server runs.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is "host:port".
	// Default: "127.0.0.1:8090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout for requests.
	// Default: 15s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout for responses. Does not apply to event streams.
	// Default: 15s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit. Hot-reloadable.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactKeys lists attribute keys whose values are replaced.
	// Default: ["password", "token", "dsn", "secret", "authorization"]
	RedactKeys []string `yaml:"redact_keys"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "helios"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "engine"
	Subsystem string `yaml:"subsystem"`

	// DurationBuckets are histogram buckets for execution and tick
	// duration in seconds.
	// Default: [0.001, 0.005, 0.025, 0.1, 0.5, 1, 5, 10]
	DurationBuckets []float64 `yaml:"duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// ServiceName is the service name in traces.
	// Default: "helios"
	ServiceName string `yaml:"service_name"`
}
