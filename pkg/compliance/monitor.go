package compliance

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/helios/pkg/governance"
	"mercator-hq/helios/pkg/telemetry/metrics"
)

// DefaultRecentCapacity bounds the recent-violations view.
const DefaultRecentCapacity = 50

// Filter selects violations in List. Zero fields match everything.
type Filter struct {
	PolicyID   string                       `json:"policy_id,omitempty"`
	Statuses   []governance.ViolationStatus `json:"statuses,omitempty"`
	Severities []governance.Severity        `json:"severities,omitempty"`
}

// Monitor records violations and tracks their resolution.
//
// It keeps a bounded view of the most recent violations; once capacity is
// exceeded the oldest is evicted and can no longer be looked up. Monitor is
// safe for concurrent use.
type Monitor struct {
	mu       sync.RWMutex
	table    Table
	recent   []*governance.Violation // oldest first
	byID     map[string]*governance.Violation
	capacity int

	now     func() time.Time
	metrics *metrics.Collector
	logger  *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithTable sets the severity table.
func WithTable(t Table) Option {
	return func(m *Monitor) { m.table = t }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithMetrics records violations on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Monitor) { m.metrics = c }
}

// NewMonitor creates a monitor keeping up to capacity recent violations.
func NewMonitor(capacity int, opts ...Option) *Monitor {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	m := &Monitor{
		table:    Table{Default: DefaultThresholds},
		byID:     make(map[string]*governance.Violation, capacity),
		capacity: capacity,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default().With("component", "compliance.monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetTable replaces the severity table. Existing violations keep their
// severity.
func (m *Monitor) SetTable(t Table) {
	m.mu.Lock()
	m.table = t
	m.mu.Unlock()
}

// Record creates an OPEN violation for a non-compliant execution of p.
func (m *Monitor) Record(p *governance.Policy, exec *governance.Execution) (*governance.Violation, error) {
	if p == nil || exec == nil {
		return nil, governance.NewValidationError("execution", "policy and execution are required")
	}
	if exec.PolicyID != p.ID {
		return nil, governance.NewValidationError("policy_id", "execution %q belongs to policy %q, not %q", exec.ID, exec.PolicyID, p.ID)
	}
	if !exec.NonCompliant() {
		return nil, governance.NewValidationError("execution", "execution %q is not a non-compliant success", exec.ID)
	}

	m.mu.Lock()
	v := &governance.Violation{
		ID:          uuid.New().String(),
		PolicyID:    p.ID,
		ExecutionID: exec.ID,
		Severity:    m.table.Severity(p.RiskClass, exec.Result.Confidence),
		Description: describe(p, exec),
		Confidence:  exec.Result.Confidence,
		DetectedAt:  m.now(),
		Status:      governance.ViolationOpen,
	}
	m.recent = append(m.recent, v)
	m.byID[v.ID] = v
	if len(m.recent) > m.capacity {
		evicted := m.recent[0]
		m.recent[0] = nil
		m.recent = m.recent[1:]
		delete(m.byID, evicted.ID)
	}
	out := v.Clone()
	m.mu.Unlock()

	m.metrics.RecordViolation(string(out.Severity))
	m.logger.Info("violation detected",
		"violation_id", out.ID,
		"policy_id", out.PolicyID,
		"severity", out.Severity,
		"confidence", out.Confidence,
	)
	return out, nil
}

// Assign moves an OPEN violation to IN_PROGRESS under assignee.
func (m *Monitor) Assign(id, assignee string) (*governance.Violation, error) {
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return nil, governance.NewValidationError("assignee", "assignee is required")
	}
	return m.transition(id, governance.ViolationInProgress, func(v *governance.Violation) {
		v.AssignedTo = assignee
	})
}

// Resolve moves an OPEN or IN_PROGRESS violation to RESOLVED.
func (m *Monitor) Resolve(id, resolution string) (*governance.Violation, error) {
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, governance.NewValidationError("resolution", "resolution is required")
	}
	v, err := m.transition(id, governance.ViolationResolved, func(v *governance.Violation) {
		t := m.now()
		v.Resolution = resolution
		v.ResolvedAt = &t
	})
	if err != nil {
		return nil, err
	}
	m.metrics.RecordViolationResolved(string(v.Severity))
	return v, nil
}

func (m *Monitor) transition(id string, to governance.ViolationStatus, apply func(*governance.Violation)) (*governance.Violation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.byID[id]
	if !ok {
		return nil, governance.NewNotFoundError("violation", id)
	}
	if !governance.CanViolationTransition(v.Status, to) {
		return nil, governance.NewInvalidTransitionError("violation", id, v.Status, to)
	}

	// Replace rather than mutate so copies handed out earlier stay valid.
	next := v.Clone()
	next.Status = to
	apply(next)
	m.byID[id] = next
	if i := slices.Index(m.recent, v); i >= 0 {
		m.recent[i] = next
	}

	m.logger.Debug("violation updated", "violation_id", id, "from", v.Status, "to", to)
	return next.Clone(), nil
}

// Get returns violation id, or NotFound once it has left the recent view.
func (m *Monitor) Get(id string) (*governance.Violation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.byID[id]
	if !ok {
		return nil, governance.NewNotFoundError("violation", id)
	}
	return v.Clone(), nil
}

// List returns matching violations, newest first.
func (m *Monitor) List(f Filter) []*governance.Violation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*governance.Violation, 0, len(m.recent))
	for i := len(m.recent) - 1; i >= 0; i-- {
		v := m.recent[i]
		if f.PolicyID != "" && v.PolicyID != f.PolicyID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, v.Status) {
			continue
		}
		if len(f.Severities) > 0 && !slices.Contains(f.Severities, v.Severity) {
			continue
		}
		out = append(out, v.Clone())
	}
	return out
}

// Len returns the number of violations in the recent view.
func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.recent)
}

// OpenCount returns the number of unresolved violations in the recent view.
func (m *Monitor) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, v := range m.recent {
		if v.Status != governance.ViolationResolved {
			n++
		}
	}
	return n
}

func describe(p *governance.Policy, exec *governance.Execution) string {
	desc := fmt.Sprintf("policy %q evaluated non-compliant (confidence %.2f)", p.Name, exec.Result.Confidence)
	if len(exec.Result.Actions) > 0 {
		desc += "; actions: " + strings.Join(exec.Result.Actions, ", ")
	}
	return desc
}
