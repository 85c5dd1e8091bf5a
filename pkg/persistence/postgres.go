package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mercator-hq/helios/pkg/governance"
)

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	ConnectTimeout time.Duration
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS helios_policies (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	version    BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	document   JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_helios_policies_status ON helios_policies(status);
`

// Postgres stores policy documents in a PostgreSQL table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, pings and creates the schema.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, governance.NewValidationError("persistence.postgres.dsn", "dsn is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, opError("postgres", "open", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 1
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, opError("postgres", "open", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, opError("postgres", "ping", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, opError("postgres", "init", fmt.Errorf("failed to initialize schema: %w", err))
	}
	return &Postgres{pool: pool}, nil
}

// Name implements Backend.
func (s *Postgres) Name() string { return "postgres" }

// LoadAll returns every stored policy ordered by creation time.
func (s *Postgres) LoadAll(ctx context.Context) ([]*governance.Policy, error) {
	rows, err := s.pool.Query(ctx, `SELECT document FROM helios_policies ORDER BY created_at, id`)
	if err != nil {
		return nil, opError(s.Name(), "load", err)
	}
	defer rows.Close()

	var out []*governance.Policy
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, opError(s.Name(), "load", err)
		}
		var p governance.Policy
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, opError(s.Name(), "load", fmt.Errorf("failed to decode policy: %w", err))
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, opError(s.Name(), "load", err)
	}
	return out, nil
}

// Save upserts p.
func (s *Postgres) Save(ctx context.Context, p *governance.Policy) error {
	if err := requireID(s.Name(), "save", p); err != nil {
		return err
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return opError(s.Name(), "save", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO helios_policies (id, name, status, version, created_at, updated_at, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at,
			document = EXCLUDED.document`,
		p.ID, p.Name, string(p.Status), p.Version, p.CreatedAt, p.UpdatedAt, doc,
	)
	if err != nil {
		return opError(s.Name(), "save", err)
	}
	return nil
}

// Delete removes id.
func (s *Postgres) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM helios_policies WHERE id = $1`, id); err != nil {
		return opError(s.Name(), "delete", err)
	}
	return nil
}

// Ping implements Backend.
func (s *Postgres) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return opError(s.Name(), "ping", err)
	}
	return nil
}

// Close closes the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
