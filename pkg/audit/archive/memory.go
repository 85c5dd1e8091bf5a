package archive

import (
	"context"
	"sync"
	"time"

	"mercator-hq/helios/pkg/governance"
)

// MemoryStore keeps archived records in a slice, oldest first.
type MemoryStore struct {
	mu      sync.RWMutex
	records []governance.AuditRecord
	closed  bool
}

// NewMemoryStore creates an empty in-memory archive.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Store(ctx context.Context, rec governance.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return governance.NewPersistenceError("memory", "store", errClosed)
	}

	// Keep timestamp order even if writes arrive slightly out of order.
	i := len(m.records)
	for i > 0 && m.records[i-1].Timestamp.After(rec.Timestamp) {
		i--
	}
	m.records = append(m.records, governance.AuditRecord{})
	copy(m.records[i+1:], m.records[i:])
	m.records[i] = *rec.Clone()
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, q *Query) ([]governance.AuditRecord, error) {
	if q == nil {
		q = &Query{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []governance.AuditRecord{}
	skipped := 0
	for i := len(m.records) - 1; i >= 0 && len(out) < q.limit(); i-- {
		rec := &m.records[i]
		if !q.matches(rec) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, *rec.Clone())
	}
	return out, nil
}

func (m *MemoryStore) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

func (m *MemoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for n < len(m.records) && m.records[n].Timestamp.Before(cutoff) {
		n++
	}
	m.records = append([]governance.AuditRecord(nil), m.records[n:]...)
	return int64(n), nil
}

func (m *MemoryStore) DeleteOldest(ctx context.Context, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 {
		return 0, nil
	}
	if n > int64(len(m.records)) {
		n = int64(len(m.records))
	}
	m.records = append([]governance.AuditRecord(nil), m.records[n:]...)
	return n, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
