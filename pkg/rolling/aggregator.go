package rolling

import (
	"math"
	"sync"
	"time"

	"mercator-hq/helios/pkg/governance"
)

// DefaultWindowSize is the capacity of each window.
const DefaultWindowSize = 20

// Metric names a rolling window.
type Metric string

const (
	// ExecutionDuration samples execution duration in milliseconds.
	ExecutionDuration Metric = "execution_duration_ms"
	// ComplianceRate samples 1 per compliant and 0 per non-compliant
	// successful execution.
	ComplianceRate Metric = "compliance_rate"
	// ViolationCount samples 1 when an execution produced a violation, else 0.
	ViolationCount Metric = "violation_count"
	// ApprovalRate samples 1 per approval and 0 per rejection.
	ApprovalRate Metric = "approval_rate"
)

// Metrics lists every known metric.
var Metrics = []Metric{ExecutionDuration, ComplianceRate, ViolationCount, ApprovalRate}

// Snapshot is an immutable view of every window.
type Snapshot struct {
	Windows         map[Metric]Stats `json:"windows"`
	ComplianceScore float64          `json:"compliance_score"`
	TakenAt         time.Time        `json:"taken_at"`
}

// Aggregator owns one window per metric.
type Aggregator struct {
	mu      sync.Mutex
	windows map[Metric]*Window
	now     func() time.Time
}

// New creates an aggregator whose windows hold size samples each.
func New(size int) *Aggregator {
	if size <= 0 {
		size = DefaultWindowSize
	}
	a := &Aggregator{windows: make(map[Metric]*Window, len(Metrics)), now: time.Now}
	for _, m := range Metrics {
		a.windows[m] = NewWindow(size)
	}
	return a
}

// Sample pushes value into the window for metric.
func (a *Aggregator) Sample(metric Metric, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return governance.NewValidationError("value", "sample must be a finite number")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	w, ok := a.windows[metric]
	if !ok {
		return governance.NewValidationError("metric", "unknown metric %q", metric)
	}
	w.Push(value)
	return nil
}

// RecordExecution samples duration, compliance and violation windows for a
// finished execution. FAILURE executions do not sample compliance.
func (a *Aggregator) RecordExecution(exec *governance.Execution, violated bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.windows[ExecutionDuration].Push(exec.DurationMs)
	a.windows[ViolationCount].Push(boolSample(violated))
	if exec.Outcome == governance.OutcomeSuccess {
		a.windows[ComplianceRate].Push(boolSample(exec.Result.Compliant))
	}
}

// RecordDecision samples the approval window.
func (a *Aggregator) RecordDecision(approved bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.windows[ApprovalRate].Push(boolSample(approved))
}

// Snapshot computes aggregates for every window.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{Windows: make(map[Metric]Stats, len(a.windows)), TakenAt: a.now().UTC()}
	for m, w := range a.windows {
		snap.Windows[m] = w.Stats()
	}
	snap.ComplianceScore = score(snap.Windows[ComplianceRate])
	return snap
}

// ComplianceScore returns the current compliance score (0-100).
func (a *Aggregator) ComplianceScore() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return score(a.windows[ComplianceRate].Stats())
}

// Values returns the samples of metric, oldest first.
func (a *Aggregator) Values(metric Metric) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.windows[metric]
	if !ok {
		return nil, governance.NewValidationError("metric", "unknown metric %q", metric)
	}
	return w.Values(), nil
}

func score(s Stats) float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Mean * 100
}

func boolSample(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
