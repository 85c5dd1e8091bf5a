package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"mercator-hq/helios/pkg/evaluator"
	"mercator-hq/helios/pkg/eventbus"
	"mercator-hq/helios/pkg/governance"
	"mercator-hq/helios/pkg/policy/store"
	"mercator-hq/helios/pkg/rolling"
	"mercator-hq/helios/pkg/syncx"
	"mercator-hq/helios/pkg/telemetry/metrics"
	"mercator-hq/helios/pkg/telemetry/tracing"
)

// Defaults for Config fields.
const (
	DefaultInterval          = 3 * time.Second
	DefaultBatchSize         = 10
	DefaultMaxParallel       = 4
	DefaultEvaluationTimeout = evaluator.DefaultTimeout
	DefaultRecentExecutions  = 100
)

// Policies is the read side of the policy store.
type Policies interface {
	Get(id string) (*governance.Policy, error)
	List(f store.Filter) []*governance.Policy
}

// Recorder appends audit records.
type Recorder interface {
	Append(rec governance.AuditRecord) governance.AuditRecord
}

// Monitor turns non-compliant executions into violations.
type Monitor interface {
	Record(p *governance.Policy, exec *governance.Execution) (*governance.Violation, error)
}

// Config tunes the loop.
type Config struct {
	Interval          time.Duration
	BatchSize         int
	MaxParallel       int
	EvaluationTimeout time.Duration

	// RecentExecutions bounds the in-memory execution history.
	RecentExecutions int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = DefaultMaxParallel
	}
	if c.EvaluationTimeout <= 0 {
		c.EvaluationTimeout = DefaultEvaluationTimeout
	}
	if c.RecentExecutions <= 0 {
		c.RecentExecutions = DefaultRecentExecutions
	}
}

// Deps are the components the loop drives. Policies, Evaluator, Ledger,
// Monitor, Metrics and Bus are required.
type Deps struct {
	Policies  Policies
	Evaluator evaluator.Evaluator
	Context   evaluator.ContextProvider
	Ledger    Recorder
	Monitor   Monitor
	Metrics   *rolling.Aggregator
	Bus       *eventbus.Bus
	Tokens    *syncx.TokenSet
	Collector *metrics.Collector
}

// Status is a point-in-time view of the loop.
type Status struct {
	Running         bool      `json:"running"`
	Interval        string    `json:"interval"`
	BatchSize       int       `json:"batch_size"`
	LastTick        time.Time `json:"last_tick,omitzero"`
	TickCount       uint64    `json:"tick_count"`
	SkippedTicks    uint64    `json:"skipped_ticks"`
	QueueDepth      int       `json:"queue_depth"`
	InFlight        int64     `json:"in_flight"`
	Throughput      float64   `json:"throughput"` // executions per second over the last tick interval
	ErrorRate       float64   `json:"error_rate"` // failed / total executions
	ExecutionsTotal uint64    `json:"executions_total"`
	FailuresTotal   uint64    `json:"failures_total"`
	Cursor          string    `json:"cursor,omitempty"`
}

// TickReport summarizes one tick.
type TickReport struct {
	Eligible   int           `json:"eligible"`
	Selected   []string      `json:"selected"`
	Executed   int           `json:"executed"`
	Busy       int           `json:"busy"` // selected but token held
	Failures   int           `json:"failures"`
	Violations int           `json:"violations"`
	QueueDepth int           `json:"queue_depth"`
	Duration   time.Duration `json:"duration"`
}

// Scheduler is the orchestration loop.
//
// A constant-interval cron job calls Tick. Each tick evaluates a batch of
// ACTIVE policies chosen round-robin from a persistent cursor, with at most
// MaxParallel evaluations running at once. A tick never overlaps another
// tick: overlapping calls are skipped and counted.
//
// Every evaluation runs under the policy's execution token, shared with
// Execute, so one policy never has two executions in flight. A token stays
// held until the evaluator call returns, even if that call outlives its
// timeout and the execution was already recorded as FAILURE.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	cfg       Config
	batchSize atomic.Int64
	deps      Deps
	evaluate  evaluator.Evaluator
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time

	lifecycle sync.Mutex
	cron      *cron.Cron
	running   atomic.Bool

	// tickMu is held for the duration of a tick, scheduled or manual.
	// Tick acquires it with TryLock so overlapping ticks are skipped; Stop
	// acquires it to wait out a tick in progress.
	tickMu sync.Mutex

	mu         sync.Mutex
	cursor     string
	lastTick   time.Time
	tickCount  uint64
	skipped    uint64
	queueDepth int
	throughput float64
	execTotal  uint64
	failTotal  uint64
	lastScore  float64
	recent     []*governance.Execution
}

// New creates a stopped scheduler.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if deps.Policies == nil || deps.Evaluator == nil || deps.Ledger == nil ||
		deps.Monitor == nil || deps.Metrics == nil || deps.Bus == nil {
		return nil, errors.New("scheduler: policies, evaluator, ledger, monitor, metrics and bus are required")
	}
	cfg.applyDefaults()
	if deps.Context == nil {
		deps.Context = evaluator.MetadataProvider{}
	}
	if deps.Tokens == nil {
		deps.Tokens = syncx.NewTokenSet()
	}

	s := &Scheduler{
		cfg:      cfg,
		deps:     deps,
		evaluate: evaluator.WithTimeout(deps.Evaluator, cfg.EvaluationTimeout),
		tracer:   otel.Tracer(tracing.InstrumentationName),
		logger:   slog.Default().With("component", "scheduler"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.batchSize.Store(int64(cfg.BatchSize))
	return s, nil
}

// SetBatchSize changes the batch size from the next tick on.
func (s *Scheduler) SetBatchSize(n int) {
	if n <= 0 {
		return
	}
	if old := s.batchSize.Swap(int64(n)); old != int64(n) {
		s.logger.Info("batch size changed", "from", old, "to", n)
	}
}

// Start begins ticking. Start is idempotent.
func (s *Scheduler) Start() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.running.Load() {
		return
	}

	cl := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.cron.Schedule(intervalSchedule(s.cfg.Interval), cron.FuncJob(func() {
		s.Tick(context.Background())
	}))
	s.cron.Start()
	s.running.Store(true)

	s.logger.Info("scheduler started", "interval", s.cfg.Interval, "batch_size", s.batchSize.Load())
	s.publishStatus()
}

// Stop halts future ticks and waits for an in-flight tick to finish,
// whether it was started by the timer or by a direct call to Tick. Stop is
// idempotent.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if !s.running.Load() {
		return
	}

	<-s.cron.Stop().Done()
	s.cron = nil
	// Wait out a manual tick still in progress.
	s.tickMu.Lock()
	s.tickMu.Unlock()
	s.running.Store(false)

	s.logger.Info("scheduler stopped")
	s.publishStatus()
}

// Running reports whether the loop is ticking.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Tick runs one orchestration cycle. If a tick is already in progress it
// returns immediately with ok=false.
//
// Tick may be called whether or not the timer is running; an explicit call
// on a stopped scheduler runs a single cycle. Stop waits for a call already
// in progress before returning.
func (s *Scheduler) Tick(ctx context.Context) (report TickReport, ok bool) {
	if !s.tickMu.TryLock() {
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		s.deps.Collector.RecordTickSkipped()
		s.logger.Debug("tick skipped, previous tick still running")
		return TickReport{}, false
	}
	defer s.tickMu.Unlock()

	start := s.now()
	ctx, span := s.tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			tracing.SetStatus(span, fmt.Errorf("tick panic: %v", r))
			s.recordPanic("", r)
			ok = true
		}
	}()

	report = s.runTick(ctx)
	report.Duration = s.now().Sub(start)

	span.SetAttributes(
		attribute.Int(tracing.AttrBatchSize, len(report.Selected)),
		attribute.Int(tracing.AttrQueueDepth, report.QueueDepth),
	)

	s.mu.Lock()
	s.lastTick = start
	s.tickCount++
	s.queueDepth = report.QueueDepth
	s.throughput = float64(report.Executed) / s.cfg.Interval.Seconds()
	s.mu.Unlock()

	s.deps.Collector.RecordTick(report.Duration, len(report.Selected), report.QueueDepth)
	s.publishStatus()

	s.logger.Debug("tick complete",
		"eligible", report.Eligible,
		"executed", report.Executed,
		"busy", report.Busy,
		"failures", report.Failures,
		"duration", report.Duration,
	)
	return report, true
}

func (s *Scheduler) runTick(ctx context.Context) TickReport {
	eligible := s.deps.Policies.List(store.Filter{Statuses: []governance.PolicyStatus{governance.StatusActive}})
	byID := make(map[string]*governance.Policy, len(eligible))
	ids := make([]string, 0, len(eligible))
	for _, p := range eligible {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	s.mu.Lock()
	selected, cursor := roundRobin(ids, s.cursor, int(s.batchSize.Load()))
	s.cursor = cursor
	s.mu.Unlock()

	report := TickReport{Eligible: len(eligible), Selected: selected}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.MaxParallel)

	for _, id := range selected {
		p := byID[id]
		if !s.deps.Tokens.TryAcquire(id) {
			report.Busy++
			continue
		}
		s.deps.Collector.SetInFlight(s.deps.Tokens.InFlight())
		g.Go(func() error {
			ctx, release := s.hold(ctx, p.ID)
			defer release()
			defer func() {
				if r := recover(); r != nil {
					s.recordPanic(p.ID, r)
					mu.Lock()
					report.Failures++
					mu.Unlock()
				}
			}()
			exec, violation := s.run(ctx, p, governance.ActorScheduler)

			mu.Lock()
			report.Executed++
			if exec.Outcome == governance.OutcomeFailure {
				report.Failures++
			}
			if violation != nil {
				report.Violations++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	s.deps.Collector.SetInFlight(s.deps.Tokens.InFlight())

	report.QueueDepth = report.Eligible - report.Executed
	return report
}

// Execute evaluates policy id now on behalf of actor. The policy must be
// ACTIVE and must not have an execution in flight.
func (s *Scheduler) Execute(ctx context.Context, id, actor string) (*governance.Execution, *governance.Violation, error) {
	if actor == "" {
		return nil, nil, governance.NewValidationError("actor", "actor is required")
	}
	p, err := s.deps.Policies.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if p.Status != governance.StatusActive {
		return nil, nil, governance.NewValidationError("status", "policy %q is %s; only ACTIVE policies can be executed", id, p.Status)
	}
	if !s.deps.Tokens.TryAcquire(id) {
		return nil, nil, &governance.ConcurrencyConflictError{PolicyID: id}
	}
	s.deps.Collector.SetInFlight(s.deps.Tokens.InFlight())
	ctx, release := s.hold(ctx, id)
	defer release()

	exec, violation := s.run(ctx, p, actor)
	return exec, violation, nil
}

// hold ties the execution token for id, already acquired, to the lifetime of
// the evaluator call. The returned release frees the token, unless the
// evaluation timed out while the evaluator was still running; the token is
// then freed when that call returns.
func (s *Scheduler) hold(ctx context.Context, id string) (context.Context, func()) {
	var (
		abandoned atomic.Bool
		once      sync.Once
	)
	free := func() {
		once.Do(func() {
			s.deps.Tokens.Release(id)
			s.deps.Collector.SetInFlight(s.deps.Tokens.InFlight())
		})
	}
	ctx = evaluator.WithAbandonHook(ctx, func() func() {
		abandoned.Store(true)
		s.logger.Warn("evaluation abandoned after timeout, token held until it returns", "policy_id", id)
		return free
	})
	return ctx, func() {
		if !abandoned.Load() {
			free()
		}
	}
}

// run evaluates p and records the result everywhere. The caller holds the
// execution token.
func (s *Scheduler) run(ctx context.Context, p *governance.Policy, actor string) (exec *governance.Execution, violation *governance.Violation) {
	ctx, span := s.tracer.Start(ctx, "scheduler.execute",
		trace.WithAttributes(tracing.PolicyAttributes(p.ID, int(p.Version), actor)...))
	defer span.End()

	trigger := "scheduled"
	if actor != governance.ActorScheduler {
		trigger = "manual"
	}
	exec = &governance.Execution{
		ID:            uuid.New().String(),
		PolicyID:      p.ID,
		PolicyVersion: p.Version,
		ExecutedAt:    s.now(),
		ExecutedBy:    actor,
		Metadata:      governance.Metadata{"trigger": trigger},
	}

	start := time.Now()
	res, err := s.evaluateOnce(ctx, p)
	elapsed := time.Since(start)
	exec.DurationMs = float64(elapsed.Microseconds()) / 1000

	if err != nil {
		exec.Outcome = governance.OutcomeFailure
		exec.Error = err.Error()
		tracing.SetStatus(span, err)
		s.logger.Warn("policy evaluation failed", "policy_id", p.ID, "actor", actor, "error", err)
	} else {
		exec.Outcome = governance.OutcomeSuccess
		exec.Result = res
		span.SetAttributes(
			attribute.Bool(tracing.AttrCompliant, res.Compliant),
			attribute.Float64(tracing.AttrConfidence, res.Confidence),
		)
	}
	span.SetAttributes(attribute.String(tracing.AttrOutcome, string(exec.Outcome)))

	s.deps.Ledger.Append(governance.AuditRecord{
		PolicyID: p.ID,
		Action:   governance.AuditExecute,
		Actor:    actor,
		Details:  describe(exec),
		Payload:  governance.Snapshot(exec),
	})

	if exec.NonCompliant() {
		v, err := s.deps.Monitor.Record(p, exec)
		if err != nil {
			s.logger.Error("failed to record violation", "policy_id", p.ID, "execution_id", exec.ID, "error", err)
		} else {
			violation = v
		}
	}

	s.deps.Metrics.RecordExecution(exec, violation != nil)
	s.deps.Collector.RecordExecution(string(exec.Outcome), elapsed)
	s.remember(exec)

	s.deps.Bus.Publish(eventbus.PolicyExecuted, p.ID, exec.Clone())
	if violation != nil {
		s.deps.Bus.Publish(eventbus.ViolationDetected, p.ID, violation.Clone())
	}
	s.publishScore()

	return exec.Clone(), violation
}

func (s *Scheduler) evaluateOnce(ctx context.Context, p *governance.Policy) (governance.Result, error) {
	evalCtx, err := s.deps.Context.Context(ctx, p)
	if err != nil {
		return governance.Result{}, &governance.EvaluationError{PolicyID: p.ID, Cause: fmt.Errorf("context: %w", err)}
	}
	return s.evaluate.Evaluate(ctx, p, evalCtx)
}

func (s *Scheduler) remember(exec *governance.Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execTotal++
	if exec.Outcome == governance.OutcomeFailure {
		s.failTotal++
	}
	s.recent = append(s.recent, exec.Clone())
	if over := len(s.recent) - s.cfg.RecentExecutions; over > 0 {
		clear(s.recent[:over])
		s.recent = s.recent[over:]
	}
}

func (s *Scheduler) publishScore() {
	score := s.deps.Metrics.ComplianceScore()

	s.mu.Lock()
	prev := s.lastScore
	changed := math.Abs(score-prev) > 1e-9
	s.lastScore = score
	s.mu.Unlock()

	s.deps.Collector.SetComplianceScore(score)
	if changed {
		s.deps.Bus.Publish(eventbus.ComplianceScoreChanged, "", eventbus.ScoreChange{Previous: prev, Current: score})
	}
}

func (s *Scheduler) publishStatus() {
	s.deps.Bus.Publish(eventbus.OrchestrationStatusChanged, "", s.Status())
}

// Status returns the current loop status. Counters survive Stop and Start.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:         s.running.Load(),
		Interval:        s.cfg.Interval.String(),
		BatchSize:       int(s.batchSize.Load()),
		LastTick:        s.lastTick,
		TickCount:       s.tickCount,
		SkippedTicks:    s.skipped,
		QueueDepth:      s.queueDepth,
		InFlight:        s.deps.Tokens.InFlight(),
		Throughput:      s.throughput,
		ExecutionsTotal: s.execTotal,
		FailuresTotal:   s.failTotal,
		Cursor:          s.cursor,
	}
	if s.execTotal > 0 {
		st.ErrorRate = float64(s.failTotal) / float64(s.execTotal)
	}
	return st
}

// Executions returns recent executions, newest first. An empty policyID
// matches every policy; limit <= 0 returns all retained executions.
func (s *Scheduler) Executions(policyID string, limit int) []*governance.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*governance.Execution
	for i := len(s.recent) - 1; i >= 0; i-- {
		e := s.recent[i]
		if policyID != "" && e.PolicyID != policyID {
			continue
		}
		out = append(out, e.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// recordPanic notes a recovered panic in the audit ledger so the failure
// stays visible after the loop moves on.
func (s *Scheduler) recordPanic(policyID string, r any) {
	err := fmt.Errorf("tick panic: %v", r)
	s.logger.Error("tick failed", "policy_id", policyID, "error", err)
	s.deps.Ledger.Append(governance.AuditRecord{
		PolicyID: policyID,
		Action:   governance.AuditExecute,
		Actor:    governance.ActorScheduler,
		Details:  err.Error(),
	})
}

func describe(exec *governance.Execution) string {
	if exec.Outcome == governance.OutcomeFailure {
		return fmt.Sprintf("execution %s failed: %s", exec.ID, exec.Error)
	}
	return fmt.Sprintf("execution %s compliant=%t confidence=%.2f", exec.ID, exec.Result.Compliant, exec.Result.Confidence)
}
