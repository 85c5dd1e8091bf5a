package rolling

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"mercator-hq/helios/pkg/governance"
)

func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for i := 1; i <= 5; i++ {
		w.Push(float64(i))
		if w.Len() > w.Cap() {
			t.Fatalf("window exceeded capacity: %d > %d", w.Len(), w.Cap())
		}
	}
	if got := fmt.Sprint(w.Values()); got != "[3 4 5]" {
		t.Errorf("expected [3 4 5], got %s", got)
	}

	s := w.Stats()
	if s.Count != 3 || s.Sum != 12 || s.Mean != 4 || s.Latest != 5 || s.Min != 3 || s.Max != 5 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestWindow_Empty(t *testing.T) {
	w := NewWindow(0)
	if w.Cap() != 1 {
		t.Errorf("expected minimum capacity 1, got %d", w.Cap())
	}
	if s := w.Stats(); s.Count != 0 || s.Mean != 0 {
		t.Errorf("unexpected empty stats %+v", s)
	}
}

func TestAggregator_Sample(t *testing.T) {
	a := New(20)

	if err := a.Sample(ExecutionDuration, 12.5); err != nil {
		t.Fatal(err)
	}
	if err := a.Sample("latency_p99", 1); !errors.Is(err, governance.ErrValidation) {
		t.Errorf("expected validation error for unknown metric, got %v", err)
	}
	if err := a.Sample(ComplianceRate, math.NaN()); !errors.Is(err, governance.ErrValidation) {
		t.Errorf("expected validation error for NaN, got %v", err)
	}
	if _, err := a.Values("nope"); err == nil {
		t.Error("expected error for unknown metric")
	}
}

func TestAggregator_ComplianceScore(t *testing.T) {
	a := New(4)
	if a.ComplianceScore() != 0 {
		t.Error("empty window must score 0")
	}

	ok := &governance.Execution{Outcome: governance.OutcomeSuccess, DurationMs: 10, Result: governance.Result{Compliant: true}}
	bad := &governance.Execution{Outcome: governance.OutcomeSuccess, DurationMs: 30, Result: governance.Result{Compliant: false}}
	failed := &governance.Execution{Outcome: governance.OutcomeFailure, DurationMs: 5}

	a.RecordExecution(ok, false)
	a.RecordExecution(bad, true)
	a.RecordExecution(failed, false)
	a.RecordExecution(ok, false)

	snap := a.Snapshot()
	if snap.Windows[ExecutionDuration].Count != 4 {
		t.Errorf("expected 4 duration samples, got %d", snap.Windows[ExecutionDuration].Count)
	}
	if snap.Windows[ComplianceRate].Count != 3 {
		t.Errorf("failed executions must not sample compliance, got %d", snap.Windows[ComplianceRate].Count)
	}
	if snap.Windows[ViolationCount].Sum != 1 {
		t.Errorf("expected 1 violation in window, got %v", snap.Windows[ViolationCount].Sum)
	}
	want := 200.0 / 3
	if math.Abs(snap.ComplianceScore-want) > 1e-9 || math.Abs(a.ComplianceScore()-want) > 1e-9 {
		t.Errorf("expected score %v, got %v", want, snap.ComplianceScore)
	}
}

func TestAggregator_Decisions(t *testing.T) {
	a := New(20)
	a.RecordDecision(true)
	a.RecordDecision(false)
	a.RecordDecision(true)
	a.RecordDecision(true)

	s := a.Snapshot().Windows[ApprovalRate]
	if s.Count != 4 || s.Mean != 0.75 {
		t.Errorf("unexpected approval stats %+v", s)
	}
}

func TestSnapshot_IsImmutable(t *testing.T) {
	a := New(5)
	a.Sample(ExecutionDuration, 1)
	snap := a.Snapshot()
	a.Sample(ExecutionDuration, 100)
	if snap.Windows[ExecutionDuration].Latest != 1 {
		t.Error("snapshot changed after later samples")
	}
}
