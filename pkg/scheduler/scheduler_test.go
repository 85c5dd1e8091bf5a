package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/helios/pkg/audit"
	"mercator-hq/helios/pkg/compliance"
	"mercator-hq/helios/pkg/evaluator"
	"mercator-hq/helios/pkg/eventbus"
	"mercator-hq/helios/pkg/governance"
	"mercator-hq/helios/pkg/policy/store"
	"mercator-hq/helios/pkg/rolling"
)

type harness struct {
	store   *store.Store
	ledger  *audit.Ledger
	monitor *compliance.Monitor
	metrics *rolling.Aggregator
	bus     *eventbus.Bus
	sched   *Scheduler
}

func newHarness(t *testing.T, cfg Config, ev evaluator.Evaluator) *harness {
	t.Helper()
	h := &harness{
		store:   store.New(),
		ledger:  audit.New(1000),
		monitor: compliance.NewMonitor(50),
		metrics: rolling.New(20),
		bus:     eventbus.New(1000, nil),
	}
	s, err := New(cfg, Deps{
		Policies:  h.store,
		Evaluator: ev,
		Ledger:    h.ledger,
		Monitor:   h.monitor,
		Metrics:   h.metrics,
		Bus:       h.bus,
	})
	if err != nil {
		t.Fatal(err)
	}
	h.sched = s
	t.Cleanup(s.Stop)
	return h
}

func (h *harness) activePolicy(t *testing.T, name string, md governance.Metadata) *governance.Policy {
	t.Helper()
	ctx := context.Background()
	p, err := h.store.Create(ctx, store.Draft{Name: name, Type: governance.PolicyTypeSecurity, Metadata: md})
	if err != nil {
		t.Fatal(err)
	}
	for _, st := range []governance.PolicyStatus{governance.StatusPendingApproval, governance.StatusActive} {
		if p, err = h.store.Transition(ctx, p.ID, st); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

// verdict evaluates to the "compliant" metadata flag of the policy.
var verdict = evaluator.Func(func(_ context.Context, p *governance.Policy, evalCtx governance.Metadata) (governance.Result, error) {
	if v, ok := evalCtx["fail"].(string); ok {
		return governance.Result{}, errors.New(v)
	}
	compliant, _ := evalCtx["compliant"].(bool)
	if compliant {
		return governance.Result{Compliant: true, Confidence: 1}, nil
	}
	return governance.Result{Compliant: false, Confidence: 0.95, Actions: []string{"notify"}}, nil
})

func drain(sub *eventbus.Subscription) []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case evt := <-sub.C():
			out = append(out, evt)
		default:
			return out
		}
	}
}

func kinds(events []eventbus.Event) []eventbus.Kind {
	out := make([]eventbus.Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func TestRoundRobin(t *testing.T) {
	ids := []string{"d", "b", "a", "c", "e"}
	tests := []struct {
		cursor     string
		n          int
		want       []string
		wantCursor string
	}{
		{"", 2, []string{"a", "b"}, "b"},
		{"b", 2, []string{"c", "d"}, "d"},
		{"d", 2, []string{"e", "a"}, "a"},
		{"bb", 2, []string{"c", "d"}, "d"}, // cursor id no longer eligible
		{"e", 10, []string{"a", "b", "c", "d", "e"}, "e"},
		{"a", 0, nil, "a"},
	}
	for _, tt := range tests {
		got, cursor := roundRobin(ids, tt.cursor, tt.n)
		if fmt.Sprint(got) != fmt.Sprint(tt.want) || cursor != tt.wantCursor {
			t.Errorf("roundRobin(%q, %d) = %v, %q; want %v, %q", tt.cursor, tt.n, got, cursor, tt.want, tt.wantCursor)
		}
	}
	if got, cursor := roundRobin(nil, "x", 3); got != nil || cursor != "x" {
		t.Errorf("empty input: got %v, %q", got, cursor)
	}
}

func TestTick_FairRotation(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 2}, verdict)
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, h.activePolicy(t, fmt.Sprintf("p%d", i), governance.Metadata{"compliant": true}).ID)
	}
	h.store.Create(context.Background(), store.Draft{Name: "draft", Type: governance.PolicyTypeSecurity})
	sort.Strings(ids)

	served := make(map[string]int)
	for i := 0; i < 5; i++ {
		report, ok := h.sched.Tick(context.Background())
		if !ok {
			t.Fatal("tick skipped")
		}
		if report.Eligible != 5 || report.Executed != 2 || report.QueueDepth != 3 {
			t.Errorf("tick %d: unexpected report %+v", i, report)
		}
		for _, id := range report.Selected {
			served[id]++
		}
	}
	for _, id := range ids {
		if served[id] != 2 {
			t.Errorf("policy %s served %d times, want 2", id, served[id])
		}
	}

	st := h.sched.Status()
	if st.TickCount != 5 || st.ExecutionsTotal != 10 || st.ErrorRate != 0 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestTick_RecordsEverywhere(t *testing.T) {
	h := newHarness(t, Config{}, verdict)
	bad := h.activePolicy(t, "bad", governance.Metadata{"compliant": false})
	sub := h.bus.Subscribe("test")

	report, _ := h.sched.Tick(context.Background())
	if report.Executed != 1 || report.Violations != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	res, _ := h.ledger.Query(audit.Filter{PolicyID: bad.ID, Actions: []governance.AuditAction{governance.AuditExecute}}, audit.Page{})
	if res.Total != 1 || res.Records[0].Actor != governance.ActorScheduler {
		t.Errorf("expected one scheduler EXECUTE record, got %+v", res)
	}

	violations := h.monitor.List(compliance.Filter{PolicyID: bad.ID})
	if len(violations) != 1 || violations[0].Severity != governance.SeverityCritical {
		t.Errorf("expected one CRITICAL violation, got %+v", violations)
	}

	snap := h.metrics.Snapshot()
	if snap.Windows[rolling.ExecutionDuration].Count != 1 || snap.ComplianceScore != 0 {
		t.Errorf("unexpected metrics %+v", snap)
	}

	got := kinds(drain(sub))
	for _, want := range []eventbus.Kind{eventbus.PolicyExecuted, eventbus.ViolationDetected, eventbus.OrchestrationStatusChanged} {
		if !slices.Contains(got, want) {
			t.Errorf("missing %s in %v", want, got)
		}
	}
}

func TestTick_ScoreChangeEvent(t *testing.T) {
	h := newHarness(t, Config{}, verdict)
	h.activePolicy(t, "good", governance.Metadata{"compliant": true})
	sub := h.bus.Subscribe("score", eventbus.ComplianceScoreChanged)

	h.sched.Tick(context.Background())
	events := drain(sub)
	if len(events) != 1 {
		t.Fatalf("expected one score change, got %d", len(events))
	}
	change := events[0].Payload.(eventbus.ScoreChange)
	if change.Previous != 0 || change.Current != 100 {
		t.Errorf("unexpected change %+v", change)
	}

	h.sched.Tick(context.Background())
	if events := drain(sub); len(events) != 0 {
		t.Errorf("score unchanged, expected no event, got %d", len(events))
	}
}

func TestTick_FailureIsNotViolation(t *testing.T) {
	h := newHarness(t, Config{}, verdict)
	p := h.activePolicy(t, "broken", governance.Metadata{"fail": "backend unavailable"})

	report, _ := h.sched.Tick(context.Background())
	if report.Failures != 1 || report.Violations != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	execs := h.sched.Executions(p.ID, 0)
	if len(execs) != 1 || execs[0].Outcome != governance.OutcomeFailure || execs[0].Error == "" {
		t.Errorf("expected FAILURE execution, got %+v", execs)
	}
	if h.monitor.Len() != 0 {
		t.Error("failed executions must not produce violations")
	}
	if st := h.sched.Status(); st.ErrorRate != 1 || st.FailuresTotal != 1 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestTick_EvaluatorPanicAndTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	ev := evaluator.Func(func(_ context.Context, p *governance.Policy, _ governance.Metadata) (governance.Result, error) {
		if p.Name == "panics" {
			panic("nil map")
		}
		<-release
		return governance.Result{Compliant: true, Confidence: 1}, nil
	})
	h := newHarness(t, Config{EvaluationTimeout: 30 * time.Millisecond}, ev)
	h.activePolicy(t, "panics", nil)
	h.activePolicy(t, "hangs", nil)

	report, ok := h.sched.Tick(context.Background())
	if !ok || report.Failures != 2 {
		t.Fatalf("expected two failures, got %+v", report)
	}
	if _, ok := h.sched.Tick(context.Background()); !ok {
		t.Error("loop must keep ticking after failures")
	}
}

func TestExecute(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	ev := evaluator.Func(func(context.Context, *governance.Policy, governance.Metadata) (governance.Result, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return governance.Result{Compliant: true, Confidence: 1}, nil
	})
	h := newHarness(t, Config{}, ev)
	p := h.activePolicy(t, "p", nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		exec, _, err := h.sched.Execute(context.Background(), p.ID, "alice")
		if err != nil || exec.ExecutedBy != "alice" || exec.Metadata["trigger"] != "manual" {
			t.Errorf("manual execution: %+v, %v", exec, err)
		}
	}()
	<-entered

	var conflict *governance.ConcurrencyConflictError
	if _, _, err := h.sched.Execute(context.Background(), p.ID, "bob"); !errors.As(err, &conflict) {
		t.Errorf("expected ConcurrencyConflict, got %v", err)
	}
	report, _ := h.sched.Tick(context.Background())
	if report.Busy != 1 || report.Executed != 0 || report.QueueDepth != 1 {
		t.Errorf("expected busy policy to be skipped, got %+v", report)
	}

	close(release)
	wg.Wait()
	if calls.Load() != 1 {
		t.Errorf("expected a single evaluation, got %d", calls.Load())
	}
}

func TestExecute_TimedOutEvaluationKeepsToken(t *testing.T) {
	release := make(chan struct{})
	returned := make(chan struct{})
	ev := evaluator.Func(func(context.Context, *governance.Policy, governance.Metadata) (governance.Result, error) {
		defer close(returned)
		<-release
		return governance.Result{Compliant: true, Confidence: 1}, nil
	})
	h := newHarness(t, Config{EvaluationTimeout: 20 * time.Millisecond}, ev)
	p := h.activePolicy(t, "slow", nil)

	exec, _, err := h.sched.Execute(context.Background(), p.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if exec.Outcome != governance.OutcomeFailure {
		t.Fatalf("expected FAILURE on timeout, got %s", exec.Outcome)
	}
	if !h.sched.deps.Tokens.Held(p.ID) {
		t.Fatal("token released while the evaluator is still running")
	}
	var conflict *governance.ConcurrencyConflictError
	if _, _, err := h.sched.Execute(context.Background(), p.ID, "bob"); !errors.As(err, &conflict) {
		t.Errorf("expected ConcurrencyConflict while the timed-out call runs, got %v", err)
	}
	if report, _ := h.sched.Tick(context.Background()); report.Busy != 1 || report.Executed != 0 {
		t.Errorf("expected the policy to be busy, got %+v", report)
	}

	close(release)
	<-returned
	deadline := time.Now().Add(time.Second)
	for h.sched.deps.Tokens.Held(p.ID) {
		if time.Now().After(deadline) {
			t.Fatal("token not released after the evaluator returned")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestExecute_Validation(t *testing.T) {
	h := newHarness(t, Config{}, verdict)
	draft, _ := h.store.Create(context.Background(), store.Draft{Name: "d", Type: governance.PolicyTypePrivacy})

	if _, _, err := h.sched.Execute(context.Background(), draft.ID, "alice"); !errors.Is(err, governance.ErrValidation) {
		t.Errorf("expected validation error for DRAFT, got %v", err)
	}
	if _, _, err := h.sched.Execute(context.Background(), "missing", "alice"); !errors.Is(err, governance.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if _, _, err := h.sched.Execute(context.Background(), draft.ID, ""); !errors.Is(err, governance.ErrValidation) {
		t.Errorf("expected validation error for empty actor, got %v", err)
	}
}

func TestTick_OverlapSkipped(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	ev := evaluator.Func(func(context.Context, *governance.Policy, governance.Metadata) (governance.Result, error) {
		close(entered)
		<-release
		return governance.Result{Compliant: true, Confidence: 1}, nil
	})
	h := newHarness(t, Config{}, ev)
	h.activePolicy(t, "slow", nil)

	done := make(chan struct{})
	go func() {
		h.sched.Tick(context.Background())
		close(done)
	}()
	<-entered
	if _, ok := h.sched.Tick(context.Background()); ok {
		t.Error("expected overlapping tick to be skipped")
	}
	close(release)
	<-done

	if st := h.sched.Status(); st.SkippedTicks != 1 || st.TickCount != 1 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, Config{Interval: 20 * time.Millisecond}, verdict)
	h.activePolicy(t, "p", governance.Metadata{"compliant": true})

	h.sched.Start()
	h.sched.Start()
	if !h.sched.Running() {
		t.Fatal("expected running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.sched.Status().TickCount < 2 {
		if time.Now().After(deadline) {
			t.Fatal("scheduler did not tick")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.sched.Stop()
	h.sched.Stop()
	stopped := h.sched.Status()
	if stopped.Running {
		t.Error("expected stopped")
	}
	time.Sleep(60 * time.Millisecond)
	if got := h.sched.Status().TickCount; got != stopped.TickCount {
		t.Errorf("ticked after Stop: %d -> %d", stopped.TickCount, got)
	}

	h.sched.Start()
	defer h.sched.Stop()
	if got := h.sched.Status(); got.ExecutionsTotal < stopped.ExecutionsTotal || got.TickCount < stopped.TickCount {
		t.Errorf("restart reset counters: %+v", got)
	}
}

func TestSetBatchSize(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 1}, verdict)
	for i := 0; i < 3; i++ {
		h.activePolicy(t, fmt.Sprintf("p%d", i), governance.Metadata{"compliant": true})
	}
	h.sched.SetBatchSize(3)
	h.sched.SetBatchSize(0)

	report, _ := h.sched.Tick(context.Background())
	if len(report.Selected) != 3 {
		t.Errorf("expected 3 selected, got %d", len(report.Selected))
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Config{}, Deps{}); err == nil {
		t.Error("expected error for missing dependencies")
	}
}

func TestStop_WaitsForManualTick(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	ev := evaluator.Func(func(context.Context, *governance.Policy, governance.Metadata) (governance.Result, error) {
		once.Do(func() { close(entered) })
		<-release
		return governance.Result{Compliant: true, Confidence: 1}, nil
	})
	h := newHarness(t, Config{Interval: time.Hour}, ev)
	h.activePolicy(t, "slow", nil)
	h.sched.Start()

	tickDone := make(chan struct{})
	go func() {
		h.sched.Tick(context.Background())
		close(tickDone)
	}()
	<-entered

	stopped := make(chan struct{})
	go func() {
		h.sched.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the tick finished")
	}
	<-tickDone
	if st := h.sched.Status(); st.Running || st.TickCount != 1 {
		t.Errorf("unexpected status %+v", st)
	}
}
