package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "helios.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Engine.Scheduler.Interval != DefaultSchedulerInterval {
		t.Errorf("expected interval %v, got %v", DefaultSchedulerInterval, cfg.Engine.Scheduler.Interval)
	}
	if cfg.Engine.Audit.Capacity != 100 {
		t.Errorf("expected audit capacity 100, got %d", cfg.Engine.Audit.Capacity)
	}
	if cfg.Engine.Compliance.RecentCapacity != 50 {
		t.Errorf("expected recent capacity 50, got %d", cfg.Engine.Compliance.RecentCapacity)
	}
	if cfg.Engine.Metrics.WindowSize != 20 {
		t.Errorf("expected window size 20, got %d", cfg.Engine.Metrics.WindowSize)
	}
	if cfg.Transport.ReconnectDelay != 5*time.Second {
		t.Errorf("expected reconnect delay 5s, got %v", cfg.Transport.ReconnectDelay)
	}
	if !cfg.API.Enabled || !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected API and metrics to be enabled by default")
	}
	th := cfg.Engine.Compliance.DefaultThresholds
	if th.Critical != 0.9 || th.High != 0.75 || th.Medium != 0.5 {
		t.Errorf("unexpected default thresholds: %+v", th)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
engine:
  scheduler:
    interval: "500ms"
    batch_size: 3
  compliance:
    thresholds:
      CRITICAL: {critical: 0.8, high: 0.6, medium: 0.3}
persistence:
  backend: sqlite
  sqlite:
    path: ./policies.db
api:
  enabled: false
telemetry:
  logging:
    level: debug
    format: text
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Engine.Scheduler.Interval != 500*time.Millisecond {
		t.Errorf("expected interval 500ms, got %v", cfg.Engine.Scheduler.Interval)
	}
	if cfg.Engine.Scheduler.BatchSize != 3 {
		t.Errorf("expected batch size 3, got %d", cfg.Engine.Scheduler.BatchSize)
	}
	if cfg.Engine.Scheduler.MaxParallel != DefaultSchedulerMaxParallel {
		t.Errorf("expected default max parallel, got %d", cfg.Engine.Scheduler.MaxParallel)
	}
	if got := cfg.Engine.Compliance.Thresholds["CRITICAL"].Critical; got != 0.8 {
		t.Errorf("expected CRITICAL override 0.8, got %v", got)
	}
	if cfg.Persistence.Backend != "sqlite" || cfg.Persistence.SQLite.Path != "./policies.db" {
		t.Errorf("unexpected persistence config: %+v", cfg.Persistence)
	}
	if cfg.API.Enabled {
		t.Error("expected explicit api.enabled=false to be kept")
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected omitted metrics.enabled to keep its default")
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected level debug, got %q", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := writeConfig(t, "engine: [unclosed")
	if _, err := LoadConfig(bad); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"batch size", func(c *Config) { c.Engine.Scheduler.BatchSize = -1 }, "engine.scheduler.batch_size"},
		{"interval", func(c *Config) { c.Engine.Scheduler.Interval = time.Millisecond }, "engine.scheduler.interval"},
		{"threshold order", func(c *Config) {
			c.Engine.Compliance.DefaultThresholds = ThresholdConfig{Critical: 0.5, High: 0.7, Medium: 0.1}
		}, "engine.compliance.default_thresholds"},
		{"unknown risk class", func(c *Config) {
			c.Engine.Compliance.Thresholds = map[string]ThresholdConfig{"EXTREME": {}}
		}, "engine.compliance.thresholds.EXTREME"},
		{"persistence backend", func(c *Config) { c.Persistence.Backend = "mongo" }, "persistence.backend"},
		{"postgres dsn", func(c *Config) { c.Persistence.Backend = "postgres" }, "persistence.postgres.dsn"},
		{"websocket url", func(c *Config) {
			c.Transport.Enabled = true
			c.Transport.WebSocket.URL = "http://example.com"
		}, "transport.websocket.url"},
		{"kafka brokers", func(c *Config) {
			c.Transport.Enabled = true
			c.Transport.Sink = "kafka"
		}, "transport.kafka.brokers"},
		{"archive cron", func(c *Config) {
			c.Engine.Audit.Archive.Enabled = true
			c.Engine.Audit.Archive.Retention.Schedule = "not cron"
		}, "engine.audit.archive.retention.schedule"},
		{"min severity", func(c *Config) { c.Notification.MinSeverity = "SEVERE" }, "notification.min_severity"},
		{"log level", func(c *Config) { c.Telemetry.Logging.Level = "trace" }, "telemetry.logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)

			err := Validate(cfg)
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, fe := range ve.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %q, got %v", tt.field, ve.Errors)
			}
		})
	}
}

func TestValidationError_Format(t *testing.T) {
	err := ValidationError{Errors: []FieldError{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}}
	msg := err.Error()
	if !strings.Contains(msg, "2 errors") || !strings.Contains(msg, "b: worse") {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "engine:\n  scheduler:\n    batch_size: 3\n")

	t.Setenv("HELIOS_ENGINE_SCHEDULER_BATCH_SIZE", "7")
	t.Setenv("HELIOS_ENGINE_SCHEDULER_INTERVAL", "2s")
	t.Setenv("HELIOS_TRANSPORT_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("HELIOS_TELEMETRY_LOGGING_LEVEL", "warn")
	t.Setenv("HELIOS_API_ENABLED", "false")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Engine.Scheduler.BatchSize != 7 {
		t.Errorf("expected env batch size 7, got %d", cfg.Engine.Scheduler.BatchSize)
	}
	if cfg.Engine.Scheduler.Interval != 2*time.Second {
		t.Errorf("expected env interval 2s, got %v", cfg.Engine.Scheduler.Interval)
	}
	if len(cfg.Transport.Kafka.Brokers) != 2 || cfg.Transport.Kafka.Brokers[1] != "b:9092" {
		t.Errorf("unexpected brokers: %v", cfg.Transport.Kafka.Brokers)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("expected level warn, got %q", cfg.Telemetry.Logging.Level)
	}
	if cfg.API.Enabled {
		t.Error("expected api disabled by env")
	}

	t.Setenv("HELIOS_PERSISTENCE_BACKEND", "nope")
	if _, err := LoadConfigWithEnvOverrides(path); err == nil {
		t.Error("expected validation error after bad override")
	}
}

func TestSingleton(t *testing.T) {
	reset()
	defer reset()

	if GetConfig() != nil {
		t.Fatal("expected nil config before Initialize")
	}

	path := writeConfig(t, "engine:\n  scheduler:\n    batch_size: 4\n")
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if MustGetConfig().Engine.Scheduler.BatchSize != 4 {
		t.Errorf("unexpected batch size %d", GetConfig().Engine.Scheduler.BatchSize)
	}
	if Path() != path {
		t.Errorf("expected path %q, got %q", path, Path())
	}

	if err := os.WriteFile(path, []byte("engine:\n  scheduler:\n    batch_size: 9\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReloadConfig(path); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if GetConfig().Engine.Scheduler.BatchSize != 9 {
		t.Errorf("expected reloaded batch size 9, got %d", GetConfig().Engine.Scheduler.BatchSize)
	}

	if err := os.WriteFile(path, []byte("persistence:\n  backend: bogus\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReloadConfig(path); err == nil {
		t.Fatal("expected reload error")
	}
	if GetConfig().Engine.Scheduler.BatchSize != 9 {
		t.Error("failed reload must keep previous config")
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	reset()
	defer reset()

	path := writeConfig(t, "engine:\n  scheduler:\n    batch_size: 2\n")
	w, err := NewWatcher(path, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	var got atomic.Int64
	w.OnReload(func(cfg *Config) { got.Store(int64(cfg.Engine.Scheduler.BatchSize)) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("engine:\n  scheduler:\n    batch_size: 6\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for got.Load() != 6 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got.Load() != 6 {
		t.Fatalf("expected reload callback with batch size 6, got %d", got.Load())
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("Watch returned error: %v", err)
	}
}

func TestDebouncer_CollapsesBursts(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}

	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Stop()
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("expected stopped debouncer not to fire, got %d calls", calls.Load())
	}
}
