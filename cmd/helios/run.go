package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/helios/pkg/api"
	"mercator-hq/helios/pkg/cli"
	"mercator-hq/helios/pkg/config"
	"mercator-hq/helios/pkg/engine"
	"mercator-hq/helios/pkg/telemetry/logging"
	"mercator-hq/helios/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	noAPI         bool
	start         bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the engine and its HTTP API",
	Long: `Start the Helios engine with the specified configuration.

The engine loads policies from the persistence backend, starts the event
transport, notifications and audit archive, and serves the HTTP API. When a
configuration file is given it is watched and the hot-reloadable settings
(log level, batch size, severity thresholds) are applied on change or on
SIGHUP.

Examples:
  # Start with defaults
  helios run

  # Start with a config file and begin scheduled evaluation immediately
  helios run --config /etc/helios/config.yaml --start

  # Override listen address
  helios run --listen 0.0.0.0:8090

  # Validate config and build the engine without serving
  helios run --dry-run`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override api listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "build the engine and exit without serving")
	runCmd.Flags().BoolVar(&runFlags.noAPI, "no-api", false, "do not start the HTTP API")
	runCmd.Flags().BoolVar(&runFlags.start, "start", false, "start the scheduler regardless of engine.scheduler.auto_start")
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.API.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if runFlags.start {
		cfg.Engine.Scheduler.AutoStart = true
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("", err.Error())
	}

	logger, err := logging.Setup(cfg.Telemetry.Logging, logging.Options{})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(ctx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
		defer cancel()
		if err := eng.Close(closeCtx); err != nil {
			logger.Error("engine close failed", "error", err)
		}
	}()

	if runFlags.dryRun {
		fmt.Fprintln(stdout(cmd), "✓ Configuration valid, engine initialized")
		return nil
	}

	if err := eng.Open(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	printBanner(cmd, cfg)

	errChan := make(chan error, 2)
	if cfgFile != "" {
		go func() {
			if err := eng.Watch(ctx, cfgFile); err != nil {
				logger.Warn("config watcher stopped", "error", err)
			}
		}()
	}
	reload, stopReload := cli.WaitForReload()
	defer stopReload()

	var srv *api.Server
	if cfg.API.Enabled && !runFlags.noAPI {
		srv = api.NewServer(&cfg.API, eng, api.WithVersion(Version, GitCommit, BuildDate))
		go func() {
			if err := srv.Start(ctx); err != nil {
				errChan <- err
			}
		}()
		fmt.Fprintf(stdout(cmd), "✓ API listening on %s\n", cfg.API.ListenAddress)
	}
	fmt.Fprintln(stdout(cmd), "\nPress Ctrl+C to stop")

	for {
		select {
		case <-reload:
			reloadConfig(eng, logger)
		case err := <-errChan:
			return cli.NewCommandError("run", err)
		case <-ctx.Done():
			fmt.Fprintln(stdout(cmd), "\nShutting down gracefully...")
			if srv != nil {
				srv.Shutdown()
			}
			fmt.Fprintln(stdout(cmd), "✓ Engine stopped")
			return nil
		}
	}
}

func reloadConfig(eng *engine.Engine, logger *slog.Logger) {
	if cfgFile == "" {
		logger.Info("reload requested but no config file is in use")
		return
	}
	cfg, err := config.ReloadConfig(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			logger.Error("reloaded config is invalid, keeping current settings", "errors", len(verr.Errors), "error", err)
			return
		}
		logger.Error("config reload failed", "error", err)
		return
	}
	eng.ApplyConfig(cfg)
}

func printBanner(cmd *cobra.Command, cfg *config.Config) {
	w := stdout(cmd)
	fmt.Fprintf(w, "Helios v%s\n", Version)
	if cfgFile != "" {
		fmt.Fprintf(w, "Configuration: %s\n", cfgFile)
	}
	fmt.Fprintf(w, "✓ Persistence: %s\n", cfg.Persistence.Backend)
	if cfg.Engine.Audit.Archive.Enabled {
		fmt.Fprintf(w, "✓ Audit archive: %s\n", cfg.Engine.Audit.Archive.Backend)
	}
	if cfg.Transport.Enabled {
		fmt.Fprintf(w, "✓ Event transport: %s\n", cfg.Transport.Sink)
	}
	if cfg.Engine.Scheduler.AutoStart {
		fmt.Fprintf(w, "✓ Scheduler running every %s\n", cfg.Engine.Scheduler.Interval)
	}
}
