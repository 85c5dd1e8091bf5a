package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/helios/pkg/audit"
	"mercator-hq/helios/pkg/governance"
)

var base = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func record(id uint64, policy string, action governance.AuditAction, offset time.Duration) governance.AuditRecord {
	return governance.AuditRecord{
		ID:        id,
		PolicyID:  policy,
		Action:    action,
		Actor:     "alice",
		Timestamp: base.Add(offset),
		Details:   "details",
		Payload:   []byte(`{"v":1}`),
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(SQLiteConfig{Path: filepath.Join(t.TempDir(), "audit.db")})
	if err != nil {
		t.Fatalf("failed to open sqlite archive: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_QueryAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			recs := []governance.AuditRecord{
				record(1, "a", governance.AuditCreate, 0),
				record(2, "a", governance.AuditExecute, time.Hour),
				record(3, "b", governance.AuditExecute, 2*time.Hour),
				record(4, "a", governance.AuditApprove, 3*time.Hour),
			}
			for _, r := range recs {
				if err := s.Store(ctx, r); err != nil {
					t.Fatalf("Store failed: %v", err)
				}
			}

			all, err := s.Query(ctx, nil)
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 4 || all[0].ID != 4 || all[3].ID != 1 {
				t.Fatalf("unexpected order: %+v", all)
			}
			if string(all[0].Payload) != `{"v":1}` || !all[0].Timestamp.Equal(base.Add(3*time.Hour)) {
				t.Errorf("record fields not round-tripped: %+v", all[0])
			}

			since := base.Add(time.Hour)
			got, _ := s.Query(ctx, &Query{PolicyID: "a", Since: &since})
			if len(got) != 2 {
				t.Errorf("expected 2 records for policy a since 1h, got %d", len(got))
			}

			got, _ = s.Query(ctx, &Query{Actions: []governance.AuditAction{governance.AuditExecute}, Limit: 1, Offset: 1})
			if len(got) != 1 || got[0].ID != 2 {
				t.Errorf("unexpected paged result %+v", got)
			}

			deleted, err := s.DeleteBefore(ctx, base.Add(time.Hour))
			if err != nil || deleted != 1 {
				t.Errorf("DeleteBefore: deleted=%d err=%v", deleted, err)
			}
			deleted, err = s.DeleteOldest(ctx, 2)
			if err != nil || deleted != 2 {
				t.Errorf("DeleteOldest: deleted=%d err=%v", deleted, err)
			}
			n, _ := s.Count(ctx)
			if n != 1 {
				t.Errorf("expected 1 record left, got %d", n)
			}
			left, _ := s.Query(ctx, &Query{})
			if left[0].ID != 4 {
				t.Errorf("expected newest record kept, got %+v", left)
			}
		})
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(SQLiteConfig{}); !errors.Is(err, governance.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

type blockingStore struct {
	*MemoryStore
	release chan struct{}
}

func (b *blockingStore) Store(ctx context.Context, rec governance.AuditRecord) error {
	<-b.release
	return b.MemoryStore.Store(ctx, rec)
}

func TestRecorder_WritesEvictedRecords(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, RecorderConfig{BufferSize: 10}, nil)

	ledger := audit.New(2, audit.WithArchiver(rec))
	for i := 0; i < 5; i++ {
		ledger.Append(governance.AuditRecord{Action: governance.AuditExecute, Actor: governance.ActorScheduler})
	}

	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}
	n, _ := store.Count(context.Background())
	if n != 3 {
		t.Errorf("expected 3 archived records, got %d", n)
	}
	if rec.Dropped() != 0 {
		t.Errorf("expected no drops, got %d", rec.Dropped())
	}

	rec.Archive(governance.AuditRecord{ID: 99})
	if rec.Dropped() != 1 {
		t.Errorf("expected archive after close to be dropped, got %d", rec.Dropped())
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	store := &blockingStore{MemoryStore: NewMemoryStore(), release: make(chan struct{})}
	rec := NewRecorder(store, RecorderConfig{BufferSize: 1}, nil)

	// One record may be held by the worker, one fills the queue; the rest drop.
	for i := 1; i <= 5; i++ {
		rec.Archive(governance.AuditRecord{ID: uint64(i)})
	}
	if rec.Dropped() < 3 {
		t.Errorf("expected at least 3 drops, got %d", rec.Dropped())
	}

	close(store.release)
	rec.Close()
}

func TestPruner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i := 0; i < 10; i++ {
		store.Store(ctx, record(uint64(i+1), "p", governance.AuditExecute, time.Duration(i)*24*time.Hour))
	}

	p := NewPruner(store, RetentionConfig{Days: 5, MaxRecords: 3})
	p.now = func() time.Time { return base.Add(9 * 24 * time.Hour) }

	deleted, err := p.Prune(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Age removes days 0-3, count trims days 4-6.
	if deleted != 7 {
		t.Errorf("expected 7 deleted, got %d", deleted)
	}
	left, _ := store.Query(ctx, &Query{})
	if len(left) != 3 || left[2].ID != 8 {
		t.Errorf("unexpected remaining records %+v", left)
	}

	none := NewPruner(store, RetentionConfig{})
	if deleted, _ := none.Prune(ctx); deleted != 0 {
		t.Errorf("expected zero config to prune nothing, got %d", deleted)
	}
}

func TestScheduler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewScheduler(NewPruner(NewMemoryStore(), RetentionConfig{Days: 1, Schedule: "0 3 * * *"}))
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if !s.IsRunning() || s.NextRun() == nil {
		t.Fatal("expected running scheduler with a next run")
	}
	s.Stop()
	s.Stop()
	if s.IsRunning() {
		t.Error("expected stopped scheduler")
	}

	bad := NewScheduler(NewPruner(NewMemoryStore(), RetentionConfig{Schedule: "every day"}))
	if err := bad.Start(ctx); err == nil {
		t.Error("expected invalid schedule error")
	}

	off := NewScheduler(NewPruner(NewMemoryStore(), RetentionConfig{}))
	if err := off.Start(ctx); err != nil || off.IsRunning() {
		t.Errorf("empty schedule should be a no-op: err=%v running=%v", err, off.IsRunning())
	}
}
