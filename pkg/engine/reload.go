package engine

import (
	"context"
	"fmt"

	"mercator-hq/helios/pkg/compliance"
	"mercator-hq/helios/pkg/config"
	"mercator-hq/helios/pkg/telemetry/logging"
)

// ApplyConfig applies the hot-reloadable subset of cfg: log level, scheduler
// batch size and compliance severity thresholds. Other changes need a
// restart and are ignored.
func (e *Engine) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if err := logging.SetLevel(cfg.Telemetry.Logging.Level); err != nil {
		e.logger.Warn("log level not applied", "level", cfg.Telemetry.Logging.Level, "error", err)
	}
	e.sched.SetBatchSize(cfg.Engine.Scheduler.BatchSize)
	e.monitor.SetTable(compliance.NewTable(cfg.Engine.Compliance))

	e.logger.Info("configuration applied",
		"log_level", cfg.Telemetry.Logging.Level,
		"batch_size", cfg.Engine.Scheduler.BatchSize,
	)
}

// Watch reloads the configuration file at path on change and applies it
// until ctx is cancelled.
func (e *Engine) Watch(ctx context.Context, path string) error {
	w, err := config.NewWatcher(path, config.DefaultWatchDebounce)
	if err != nil {
		return fmt.Errorf("failed to watch config: %w", err)
	}
	w.OnReload(e.ApplyConfig)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Watch(ctx) }()

	select {
	case <-ctx.Done():
		if err := w.Stop(); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		_ = w.Stop()
		return err
	}
}
