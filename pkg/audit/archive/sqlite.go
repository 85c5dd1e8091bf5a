package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/helios/pkg/governance"
)

const backendSQLite = "sqlite-archive"

const schema = `
CREATE TABLE IF NOT EXISTS audit_archive (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    record_id INTEGER NOT NULL,
    policy_id TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL,
    actor TEXT NOT NULL,
    ts_unix_nano INTEGER NOT NULL,
    details TEXT NOT NULL DEFAULT '',
    payload BLOB,
    archived_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_archive_ts ON audit_archive(ts_unix_nano);
CREATE INDEX IF NOT EXISTS idx_audit_archive_policy ON audit_archive(policy_id);
`

// SQLiteConfig configures the SQLite archive.
type SQLiteConfig struct {
	// Path is the database file.
	Path string

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteStore archives audit records in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the archive database.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, governance.NewValidationError("path", "archive path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, governance.NewPersistenceError(backendSQLite, "open", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: slog.Default().With("component", "audit.archive.sqlite")}
	if err := s.initialize(cfg.BusyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("SQLite audit archive initialized", "path", cfg.Path)
	return s, nil
}

func (s *SQLiteStore) initialize(busyTimeout time.Duration) error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return governance.NewPersistenceError(backendSQLite, "enable_wal", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds())); err != nil {
		return governance.NewPersistenceError(backendSQLite, "set_busy_timeout", err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return governance.NewPersistenceError(backendSQLite, "create_schema", err)
	}
	return nil
}

func (s *SQLiteStore) Store(ctx context.Context, rec governance.AuditRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_archive (record_id, policy_id, action, actor, ts_unix_nano, details, payload, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(rec.ID), rec.PolicyID, string(rec.Action), rec.Actor,
		rec.Timestamp.UnixNano(), rec.Details, []byte(rec.Payload), time.Now().UnixNano(),
	)
	if err != nil {
		return governance.NewPersistenceError(backendSQLite, "store", err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, q *Query) ([]governance.AuditRecord, error) {
	if q == nil {
		q = &Query{}
	}
	where, args := buildWhereClause(q)

	query := "SELECT record_id, policy_id, action, actor, ts_unix_nano, details, payload FROM audit_archive"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY ts_unix_nano DESC, seq DESC LIMIT ? OFFSET ?"
	args = append(args, q.limit(), q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, governance.NewPersistenceError(backendSQLite, "query", err)
	}
	defer rows.Close()

	records := []governance.AuditRecord{}
	for rows.Next() {
		var (
			rec     governance.AuditRecord
			id      int64
			action  string
			ts      int64
			payload []byte
		)
		if err := rows.Scan(&id, &rec.PolicyID, &action, &rec.Actor, &ts, &rec.Details, &payload); err != nil {
			return nil, governance.NewPersistenceError(backendSQLite, "scan", err)
		}
		rec.ID = uint64(id)
		rec.Action = governance.AuditAction(action)
		rec.Timestamp = time.Unix(0, ts).UTC()
		if len(payload) > 0 {
			rec.Payload = payload
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, governance.NewPersistenceError(backendSQLite, "query", err)
	}
	return records, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_archive").Scan(&n); err != nil {
		return 0, governance.NewPersistenceError(backendSQLite, "count", err)
	}
	return n, nil
}

func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_archive WHERE ts_unix_nano < ?", cutoff.UnixNano())
	if err != nil {
		return 0, governance.NewPersistenceError(backendSQLite, "delete", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) DeleteOldest(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM audit_archive WHERE seq IN (
			SELECT seq FROM audit_archive ORDER BY ts_unix_nano ASC, seq ASC LIMIT ?
		)`, n)
	if err != nil {
		return 0, governance.NewPersistenceError(backendSQLite, "delete_oldest", err)
	}
	return res.RowsAffected()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func buildWhereClause(q *Query) (string, []any) {
	var conds []string
	var args []any

	if q.PolicyID != "" {
		conds = append(conds, "policy_id = ?")
		args = append(args, q.PolicyID)
	}
	if q.Actor != "" {
		conds = append(conds, "actor = ?")
		args = append(args, q.Actor)
	}
	if len(q.Actions) > 0 {
		placeholders := make([]string, len(q.Actions))
		for i, a := range q.Actions {
			placeholders[i] = "?"
			args = append(args, string(a))
		}
		conds = append(conds, "action IN ("+strings.Join(placeholders, ", ")+")")
	}
	if q.Since != nil {
		conds = append(conds, "ts_unix_nano >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if q.Until != nil {
		conds = append(conds, "ts_unix_nano <= ?")
		args = append(args, q.Until.UnixNano())
	}

	return strings.Join(conds, " AND "), args
}
