package audit

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"mercator-hq/helios/pkg/governance"
	"mercator-hq/helios/pkg/telemetry/metrics"
)

// DefaultCapacity is the number of records kept in memory.
const DefaultCapacity = 100

// DefaultPageLimit is used when a page has no limit.
const DefaultPageLimit = 100

// Archiver receives records evicted from the in-memory ring. Archive must
// not block for long; it is called on the append path.
type Archiver interface {
	Archive(rec governance.AuditRecord)
}

// Filter selects audit records. Zero fields match everything.
type Filter struct {
	PolicyID string
	Actions  []governance.AuditAction
	Actor    string
	// Since and Until bound the timestamp, inclusive.
	Since time.Time
	Until time.Time
}

// Page selects a window of a query result.
type Page struct {
	Offset int
	Limit  int
}

// Result is one page of records plus the total match count.
type Result struct {
	Records []governance.AuditRecord `json:"records"`
	Total   int                      `json:"total"`
	Offset  int                      `json:"offset"`
	Limit   int                      `json:"limit"`
}

// Ledger is a capacity-bounded, append-only audit trail.
//
// Records live in a ring buffer. Once it is full every Append evicts the
// oldest record and hands it to the Archiver, if one is configured, so the
// in-memory view always holds the most recent records. Stored records are
// never modified; Query returns copies.
//
// Ledger is safe for concurrent use. Ids increase monotonically and
// timestamps never go backwards, even if the clock does.
type Ledger struct {
	mu       sync.RWMutex
	ring     []governance.AuditRecord
	head     int // index of the oldest record
	size     int
	nextID   uint64
	lastTime time.Time

	defaultLimit int
	archiver     Archiver
	now          func() time.Time
	metrics      *metrics.Collector
	logger       *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithArchiver hands evicted records to a.
func WithArchiver(a Archiver) Option {
	return func(l *Ledger) { l.archiver = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithMetrics records appends and evictions on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(l *Ledger) { l.metrics = c }
}

// WithDefaultPageLimit sets the limit used when a page has none.
func WithDefaultPageLimit(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.defaultLimit = n
		}
	}
}

// New creates a ledger holding up to capacity records.
func New(capacity int, opts ...Option) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Ledger{
		ring:         make([]governance.AuditRecord, capacity),
		defaultLimit: DefaultPageLimit,
		now:          time.Now,
		logger:       slog.Default().With("component", "audit.ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append stores rec with the next id and the current timestamp and returns
// the stored copy. Caller-supplied ID and Timestamp are ignored.
func (l *Ledger) Append(rec governance.AuditRecord) governance.AuditRecord {
	stored := *rec.Clone()

	l.mu.Lock()
	l.nextID++
	stored.ID = l.nextID

	ts := l.now().UTC()
	if ts.Before(l.lastTime) {
		ts = l.lastTime
	}
	l.lastTime = ts
	stored.Timestamp = ts

	var evicted *governance.AuditRecord
	capacity := len(l.ring)
	if l.size == capacity {
		old := l.ring[l.head]
		evicted = &old
		l.ring[l.head] = stored
		l.head = (l.head + 1) % capacity
	} else {
		l.ring[(l.head+l.size)%capacity] = stored
		l.size++
	}
	l.mu.Unlock()

	l.metrics.RecordAuditAppend(string(stored.Action), evicted != nil)
	if evicted != nil && l.archiver != nil {
		l.archiver.Archive(*evicted)
	}

	l.logger.Debug("audit record appended",
		"id", stored.ID,
		"policy_id", stored.PolicyID,
		"action", stored.Action,
		"actor", stored.Actor,
	)

	return *stored.Clone()
}

// Query returns matching records ordered by timestamp descending, ties by id
// descending.
func (l *Ledger) Query(f Filter, p Page) (Result, error) {
	if p.Offset < 0 {
		return Result{}, governance.NewValidationError("offset", "must not be negative")
	}
	if p.Limit < 0 {
		return Result{}, governance.NewValidationError("limit", "must not be negative")
	}
	for _, a := range f.Actions {
		if !a.Valid() {
			return Result{}, governance.NewValidationError("actions", "unknown audit action %q", a)
		}
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return Result{}, governance.NewValidationError("until", "must not be before since")
	}
	if p.Limit == 0 {
		p.Limit = l.defaultLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	res := Result{Offset: p.Offset, Limit: p.Limit, Records: []governance.AuditRecord{}}
	capacity := len(l.ring)
	for i := l.size - 1; i >= 0; i-- {
		rec := &l.ring[(l.head+i)%capacity]
		if !f.matches(rec) {
			continue
		}
		if res.Total >= p.Offset && len(res.Records) < p.Limit {
			res.Records = append(res.Records, *rec.Clone())
		}
		res.Total++
	}
	return res, nil
}

// Len returns the number of records held in memory.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Capacity returns the in-memory capacity.
func (l *Ledger) Capacity() int {
	return len(l.ring)
}

// LastID returns the id of the most recent record, or 0.
func (l *Ledger) LastID() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextID
}

func (f *Filter) matches(rec *governance.AuditRecord) bool {
	if f.PolicyID != "" && rec.PolicyID != f.PolicyID {
		return false
	}
	if f.Actor != "" && rec.Actor != f.Actor {
		return false
	}
	if len(f.Actions) > 0 && !slices.Contains(f.Actions, rec.Action) {
		return false
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && rec.Timestamp.After(f.Until) {
		return false
	}
	return true
}
