package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HELIOS_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML on top of the defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := NewDefault()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention HELIOS_SECTION_FIELD (e.g., HELIOS_API_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// An empty path skips the file and starts from defaults.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefault()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Engine overrides
	envDuration("ENGINE_SCHEDULER_INTERVAL", &cfg.Engine.Scheduler.Interval)
	envInt("ENGINE_SCHEDULER_BATCH_SIZE", &cfg.Engine.Scheduler.BatchSize)
	envInt("ENGINE_SCHEDULER_MAX_PARALLEL", &cfg.Engine.Scheduler.MaxParallel)
	envDuration("ENGINE_SCHEDULER_EVALUATION_TIMEOUT", &cfg.Engine.Scheduler.EvaluationTimeout)
	envBool("ENGINE_SCHEDULER_AUTO_START", &cfg.Engine.Scheduler.AutoStart)
	envInt("ENGINE_COMPLIANCE_RECENT_CAPACITY", &cfg.Engine.Compliance.RecentCapacity)
	envInt("ENGINE_AUDIT_CAPACITY", &cfg.Engine.Audit.Capacity)
	envBool("ENGINE_AUDIT_ARCHIVE_ENABLED", &cfg.Engine.Audit.Archive.Enabled)
	envString("ENGINE_AUDIT_ARCHIVE_BACKEND", &cfg.Engine.Audit.Archive.Backend)
	envString("ENGINE_AUDIT_ARCHIVE_SQLITE_PATH", &cfg.Engine.Audit.Archive.SQLitePath)
	envInt("ENGINE_AUDIT_ARCHIVE_RETENTION_DAYS", &cfg.Engine.Audit.Archive.Retention.Days)
	envInt("ENGINE_METRICS_WINDOW_SIZE", &cfg.Engine.Metrics.WindowSize)
	envInt("ENGINE_EVENT_BUS_BUFFER_SIZE", &cfg.Engine.EventBus.BufferSize)

	// Persistence overrides
	envString("PERSISTENCE_BACKEND", &cfg.Persistence.Backend)
	envString("PERSISTENCE_YAML_DIR", &cfg.Persistence.YAML.Dir)
	envString("PERSISTENCE_SQLITE_PATH", &cfg.Persistence.SQLite.Path)
	envString("PERSISTENCE_POSTGRES_DSN", &cfg.Persistence.Postgres.DSN)

	// Transport overrides
	envBool("TRANSPORT_ENABLED", &cfg.Transport.Enabled)
	envString("TRANSPORT_SINK", &cfg.Transport.Sink)
	envDuration("TRANSPORT_RECONNECT_DELAY", &cfg.Transport.ReconnectDelay)
	envString("TRANSPORT_WEBSOCKET_URL", &cfg.Transport.WebSocket.URL)
	if val := os.Getenv(EnvPrefix + "TRANSPORT_KAFKA_BROKERS"); val != "" {
		cfg.Transport.Kafka.Brokers = splitList(val)
	}
	envString("TRANSPORT_KAFKA_TOPIC", &cfg.Transport.Kafka.Topic)
	envString("TRANSPORT_REDIS_ADDR", &cfg.Transport.Redis.Addr)
	envString("TRANSPORT_REDIS_PASSWORD", &cfg.Transport.Redis.Password)
	envString("TRANSPORT_REDIS_CHANNEL", &cfg.Transport.Redis.Channel)

	// Notification overrides
	envBool("NOTIFICATION_ENABLED", &cfg.Notification.Enabled)
	envString("NOTIFICATION_MIN_SEVERITY", &cfg.Notification.MinSeverity)
	envString("NOTIFICATION_WEBHOOK_URL", &cfg.Notification.Webhook.URL)

	// API overrides
	envBool("API_ENABLED", &cfg.API.Enabled)
	envString("API_LISTEN_ADDRESS", &cfg.API.ListenAddress)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
