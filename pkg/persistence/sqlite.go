package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/helios/pkg/governance"
)

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS policies (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	version    INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	document   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policies_status ON policies(status);
`

// SQLite stores policy documents in a SQLite table.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at cfg.Path.
func NewSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, governance.NewValidationError("persistence.sqlite.path", "path is required")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, opError("sqlite", "open", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s, err := NewSQLiteFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteFromDB wraps an open database and creates the schema.
func NewSQLiteFromDB(db *sql.DB) (*SQLite, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, opError("sqlite", "init", fmt.Errorf("failed to initialize schema: %w", err))
	}
	return &SQLite{db: db}, nil
}

// Name implements Backend.
func (s *SQLite) Name() string { return "sqlite" }

// LoadAll returns every stored policy ordered by creation time.
func (s *SQLite) LoadAll(ctx context.Context) ([]*governance.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM policies ORDER BY created_at, id`)
	if err != nil {
		return nil, opError(s.Name(), "load", err)
	}
	defer rows.Close()

	var out []*governance.Policy
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, opError(s.Name(), "load", err)
		}
		var p governance.Policy
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
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
func (s *SQLite) Save(ctx context.Context, p *governance.Policy) error {
	if err := requireID(s.Name(), "save", p); err != nil {
		return err
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return opError(s.Name(), "save", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policies (id, name, status, version, created_at, updated_at, document)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			version = excluded.version,
			updated_at = excluded.updated_at,
			document = excluded.document`,
		p.ID, p.Name, string(p.Status), p.Version, p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano(), string(doc),
	)
	if err != nil {
		return opError(s.Name(), "save", err)
	}
	return nil
}

// Delete removes id.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE id = ?`, id); err != nil {
		return opError(s.Name(), "delete", err)
	}
	return nil
}

// Ping implements Backend.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return opError(s.Name(), "ping", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return opError(s.Name(), "close", err)
	}
	return nil
}
