package persistence

import (
	"context"
	"fmt"

	"mercator-hq/helios/pkg/config"
	"mercator-hq/helios/pkg/governance"
)

// Backend stores policy documents.
//
// Implementations must be safe for concurrent use. Save is an upsert keyed
// by policy id. Errors are returned as *governance.PersistenceError naming
// the backend and operation so callers can match them with
// errors.Is(err, governance.ErrPersistence).
type Backend interface {
	// Name identifies the backend in errors and logs.
	Name() string

	LoadAll(ctx context.Context) ([]*governance.Policy, error)
	Save(ctx context.Context, p *governance.Policy) error
	Delete(ctx context.Context, id string) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Open creates the backend selected by cfg.
func Open(ctx context.Context, cfg config.PersistenceConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "yaml":
		return NewYAML(cfg.YAML.Dir)
	case "sqlite":
		return NewSQLite(SQLiteConfig{Path: cfg.SQLite.Path, BusyTimeout: cfg.SQLite.BusyTimeout})
	case "postgres":
		return NewPostgres(ctx, PostgresConfig{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout,
		})
	default:
		return nil, governance.NewValidationError("persistence.backend", "unknown backend %q", cfg.Backend)
	}
}

func opError(backend, op string, err error) error {
	return governance.NewPersistenceError(backend, op, err)
}

func requireID(backend, op string, p *governance.Policy) error {
	if p == nil || p.ID == "" {
		return opError(backend, op, fmt.Errorf("policy id is required"))
	}
	return nil
}
