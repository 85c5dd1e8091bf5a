package config

import "time"

// Default values for configuration fields.
const (
	// Scheduler defaults
	DefaultSchedulerInterval          = 3 * time.Second
	DefaultSchedulerBatchSize         = 10
	DefaultSchedulerMaxParallel       = 4
	DefaultSchedulerEvaluationTimeout = 10 * time.Second

	// Compliance defaults
	DefaultComplianceRecentCapacity = 50
	DefaultThresholdCritical        = 0.9
	DefaultThresholdHigh            = 0.75
	DefaultThresholdMedium          = 0.5

	// Audit defaults
	DefaultAuditCapacity         = 100
	DefaultAuditPageLimit        = 100
	DefaultArchiveBackend        = "sqlite"
	DefaultArchiveSQLitePath     = "data/audit.db"
	DefaultArchiveBufferSize     = 1000
	DefaultArchiveWriteTimeout   = 5 * time.Second
	DefaultArchiveRetentionDays  = 90
	DefaultArchiveRetentionCron  = "0 3 * * *"
	DefaultArchiveRetentionLimit = int64(0)

	// Rolling metrics and bus defaults
	DefaultRollingWindowSize  = 20
	DefaultEventBusBufferSize = 100

	// Persistence defaults
	DefaultPersistenceBackend = "memory"
	DefaultYAMLDir            = "data/policies"
	DefaultSQLitePath         = "data/policies.db"
	DefaultSQLiteBusyTimeout  = 5 * time.Second
	DefaultPostgresMaxConns   = int32(10)
	DefaultPostgresTimeout    = 10 * time.Second

	// Transport defaults
	DefaultTransportSink           = "websocket"
	DefaultTransportReconnectDelay = 5 * time.Second
	DefaultTransportSendTimeout    = 5 * time.Second
	DefaultKafkaTopic              = "helios.events"
	DefaultRedisChannel            = "helios:events"

	// Notification defaults
	DefaultNotificationMinSeverity = "HIGH"
	DefaultWebhookTimeout          = 5 * time.Second

	// API defaults
	DefaultAPIListenAddress   = "127.0.0.1:8090"
	DefaultAPIReadTimeout     = 15 * time.Second
	DefaultAPIWriteTimeout    = 15 * time.Second
	DefaultAPIShutdownTimeout = 30 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultPrometheusPath     = "/metrics"
	DefaultMetricsNamespace   = "helios"
	DefaultMetricsSubsystem   = "engine"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "helios"
)

// DefaultRedactKeys are log attribute keys redacted when none are configured.
var DefaultRedactKeys = []string{"password", "token", "dsn", "secret", "authorization"}

// DefaultDurationBuckets are histogram buckets in seconds.
var DefaultDurationBuckets = []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 5, 10}

// NewDefault returns a Config with every default applied, including the
// boolean settings that default to true. Files are decoded on top of it so
// an omitted key keeps its default.
func NewDefault() *Config {
	cfg := &Config{}
	cfg.API.Enabled = true
	cfg.Telemetry.Metrics.Enabled = true
	cfg.Notification.Log = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	applyEngineDefaults(&cfg.Engine)

	// Persistence defaults
	if cfg.Persistence.Backend == "" {
		cfg.Persistence.Backend = DefaultPersistenceBackend
	}
	if cfg.Persistence.YAML.Dir == "" {
		cfg.Persistence.YAML.Dir = DefaultYAMLDir
	}
	if cfg.Persistence.SQLite.Path == "" {
		cfg.Persistence.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Persistence.SQLite.BusyTimeout == 0 {
		cfg.Persistence.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Persistence.Postgres.MaxConns == 0 {
		cfg.Persistence.Postgres.MaxConns = DefaultPostgresMaxConns
	}
	if cfg.Persistence.Postgres.ConnectTimeout == 0 {
		cfg.Persistence.Postgres.ConnectTimeout = DefaultPostgresTimeout
	}

	// Transport defaults
	if cfg.Transport.Sink == "" {
		cfg.Transport.Sink = DefaultTransportSink
	}
	if cfg.Transport.ReconnectDelay == 0 {
		cfg.Transport.ReconnectDelay = DefaultTransportReconnectDelay
	}
	if cfg.Transport.SendTimeout == 0 {
		cfg.Transport.SendTimeout = DefaultTransportSendTimeout
	}
	if cfg.Transport.Kafka.Topic == "" {
		cfg.Transport.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Transport.Redis.Channel == "" {
		cfg.Transport.Redis.Channel = DefaultRedisChannel
	}

	// Notification defaults
	if cfg.Notification.MinSeverity == "" {
		cfg.Notification.MinSeverity = DefaultNotificationMinSeverity
	}
	if cfg.Notification.Webhook.Timeout == 0 {
		cfg.Notification.Webhook.Timeout = DefaultWebhookTimeout
	}

	// API defaults
	if cfg.API.ListenAddress == "" {
		cfg.API.ListenAddress = DefaultAPIListenAddress
	}
	if cfg.API.ReadTimeout == 0 {
		cfg.API.ReadTimeout = DefaultAPIReadTimeout
	}
	if cfg.API.WriteTimeout == 0 {
		cfg.API.WriteTimeout = DefaultAPIWriteTimeout
	}
	if cfg.API.ShutdownTimeout == 0 {
		cfg.API.ShutdownTimeout = DefaultAPIShutdownTimeout
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = DefaultSchedulerInterval
	}
	if cfg.Scheduler.BatchSize == 0 {
		cfg.Scheduler.BatchSize = DefaultSchedulerBatchSize
	}
	if cfg.Scheduler.MaxParallel == 0 {
		cfg.Scheduler.MaxParallel = DefaultSchedulerMaxParallel
	}
	if cfg.Scheduler.EvaluationTimeout == 0 {
		cfg.Scheduler.EvaluationTimeout = DefaultSchedulerEvaluationTimeout
	}

	if cfg.Compliance.RecentCapacity == 0 {
		cfg.Compliance.RecentCapacity = DefaultComplianceRecentCapacity
	}
	if cfg.Compliance.DefaultThresholds == (ThresholdConfig{}) {
		cfg.Compliance.DefaultThresholds = ThresholdConfig{
			Critical: DefaultThresholdCritical,
			High:     DefaultThresholdHigh,
			Medium:   DefaultThresholdMedium,
		}
	}

	if cfg.Audit.Capacity == 0 {
		cfg.Audit.Capacity = DefaultAuditCapacity
	}
	if cfg.Audit.DefaultPageLimit == 0 {
		cfg.Audit.DefaultPageLimit = DefaultAuditPageLimit
	}
	if cfg.Audit.Archive.Backend == "" {
		cfg.Audit.Archive.Backend = DefaultArchiveBackend
	}
	if cfg.Audit.Archive.SQLitePath == "" {
		cfg.Audit.Archive.SQLitePath = DefaultArchiveSQLitePath
	}
	if cfg.Audit.Archive.BufferSize == 0 {
		cfg.Audit.Archive.BufferSize = DefaultArchiveBufferSize
	}
	if cfg.Audit.Archive.WriteTimeout == 0 {
		cfg.Audit.Archive.WriteTimeout = DefaultArchiveWriteTimeout
	}
	if cfg.Audit.Archive.Retention.Days == 0 {
		cfg.Audit.Archive.Retention.Days = DefaultArchiveRetentionDays
	}
	if cfg.Audit.Archive.Retention.Schedule == "" {
		cfg.Audit.Archive.Retention.Schedule = DefaultArchiveRetentionCron
	}

	if cfg.Metrics.WindowSize == 0 {
		cfg.Metrics.WindowSize = DefaultRollingWindowSize
	}
	if cfg.EventBus.BufferSize == 0 {
		cfg.EventBus.BufferSize = DefaultEventBusBufferSize
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}
	if len(cfg.Logging.RedactKeys) == 0 {
		cfg.Logging.RedactKeys = append([]string(nil), DefaultRedactKeys...)
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Metrics.DurationBuckets) == 0 {
		cfg.Metrics.DurationBuckets = append([]float64(nil), DefaultDurationBuckets...)
	}

	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
}
