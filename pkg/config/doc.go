// Package config provides configuration management for Helios.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. Every field has a default,
// so an empty file yields a runnable in-memory engine.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("helios.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("helios.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention HELIOS_SECTION_FIELD.
// For example:
//
//   - HELIOS_ENGINE_SCHEDULER_INTERVAL overrides engine.scheduler.interval
//   - HELIOS_PERSISTENCE_POSTGRES_DSN overrides persistence.postgres.dsn
//   - HELIOS_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Values from YAML file
//  2. Default values for anything left unset (defaults.go)
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Hot Reload
//
// Watcher observes the configuration file with fsnotify and, after a short
// debounce, reloads it and hands the new Config to registered callbacks.
// Only a subset of settings is applied live (log level and scheduler batch
// size); the rest take effect on restart.
//
// # Example Configuration
//
//	engine:
//	  scheduler:
//	    interval: 3s
//	    batch_size: 10
//	  compliance:
//	    recent_capacity: 50
//	    thresholds:
//	      CRITICAL: {critical: 0.8, high: 0.6, medium: 0.4}
//	  audit:
//	    capacity: 100
//
//	persistence:
//	  backend: sqlite
//	  sqlite:
//	    path: data/policies.db
//
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
package config
