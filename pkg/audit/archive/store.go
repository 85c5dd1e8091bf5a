package archive

import (
	"context"
	"errors"
	"slices"
	"time"

	"mercator-hq/helios/pkg/governance"
)

var errClosed = errors.New("archive store is closed")

// DefaultQueryLimit is used when a query has no limit.
const DefaultQueryLimit = 100

// Query filters archived records. Results are newest first.
type Query struct {
	PolicyID string
	Actions  []governance.AuditAction
	Actor    string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// Store persists archived audit records.
type Store interface {
	// Store appends a record.
	Store(ctx context.Context, rec governance.AuditRecord) error

	// Query returns matching records ordered by timestamp descending.
	Query(ctx context.Context, q *Query) ([]governance.AuditRecord, error)

	// Count returns the number of archived records.
	Count(ctx context.Context) (int64, error)

	// DeleteBefore deletes records with a timestamp before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteOldest deletes the n oldest records.
	DeleteOldest(ctx context.Context, n int64) (int64, error)

	// Close releases resources.
	Close() error
}

func (q *Query) matches(rec *governance.AuditRecord) bool {
	if q.PolicyID != "" && rec.PolicyID != q.PolicyID {
		return false
	}
	if q.Actor != "" && rec.Actor != q.Actor {
		return false
	}
	if len(q.Actions) > 0 && !slices.Contains(q.Actions, rec.Action) {
		return false
	}
	if q.Since != nil && rec.Timestamp.Before(*q.Since) {
		return false
	}
	if q.Until != nil && rec.Timestamp.After(*q.Until) {
		return false
	}
	return true
}

func (q *Query) limit() int {
	if q.Limit > 0 {
		return q.Limit
	}
	return DefaultQueryLimit
}
