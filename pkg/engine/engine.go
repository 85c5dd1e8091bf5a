package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/helios/pkg/approval"
	"mercator-hq/helios/pkg/audit"
	"mercator-hq/helios/pkg/audit/archive"
	"mercator-hq/helios/pkg/compliance"
	"mercator-hq/helios/pkg/config"
	"mercator-hq/helios/pkg/evaluator"
	"mercator-hq/helios/pkg/eventbus"
	"mercator-hq/helios/pkg/notify"
	"mercator-hq/helios/pkg/persistence"
	"mercator-hq/helios/pkg/policy/store"
	"mercator-hq/helios/pkg/rolling"
	"mercator-hq/helios/pkg/scheduler"
	"mercator-hq/helios/pkg/syncx"
	"mercator-hq/helios/pkg/telemetry/health"
	"mercator-hq/helios/pkg/telemetry/metrics"
	"mercator-hq/helios/pkg/telemetry/tracing"
	"mercator-hq/helios/pkg/transport"
)

// Engine is the policy orchestration and compliance monitoring engine. It
// ties together the policy store, approval workflow, compliance monitor,
// audit ledger, rolling metrics, event bus and scheduler, and exposes them
// as a single command and query surface.
//
// Every command appends an audit record and publishes the matching event
// before returning. All methods are safe for concurrent use.
type Engine struct {
	cfg *config.Config

	policies  *store.Store
	ledger    *audit.Ledger
	monitor   *compliance.Monitor
	approvals *approval.Workflow
	rolling   *rolling.Aggregator
	bus       *eventbus.Bus
	sched     *scheduler.Scheduler
	tokens    *syncx.TokenSet

	backend    persistence.Backend
	archive    archive.Store
	recorder   *archive.Recorder
	pruner     *archive.Scheduler
	forwarder  *transport.Forwarder
	dispatcher *notify.Dispatcher

	collector *metrics.Collector
	health    *health.Checker
	tracer    trace.Tracer
	logger    *slog.Logger

	mu     sync.Mutex
	opened bool
	closed bool
}

type options struct {
	evaluator evaluator.Evaluator
	context   evaluator.ContextProvider
	backend   persistence.Backend
	collector *metrics.Collector
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*options)

// WithEvaluator replaces the rule evaluator.
func WithEvaluator(e evaluator.Evaluator) Option {
	return func(o *options) { o.evaluator = e }
}

// WithContextProvider supplies the evaluation context for each policy.
func WithContextProvider(p evaluator.ContextProvider) Option {
	return func(o *options) { o.context = p }
}

// WithBackend uses b instead of the backend named in configuration.
func WithBackend(b persistence.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithCollector records metrics on c instead of a private registry.
func WithCollector(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// WithClock overrides the time source of every component that stamps
// entities.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New builds an engine from cfg and seeds the policy store from the
// persistence backend. Background collaborators (transport, notification,
// archive retention) are started by Open, not New, so an engine can be
// inspected or validated without side effects.
//
// Typical lifecycle:
//
//	eng, err := engine.New(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := eng.Open(ctx); err != nil {
//		return err
//	}
//	defer eng.Close(context.Background())
//	eng.Start()
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		cfg:    cfg,
		tokens: syncx.NewTokenSet(),
		tracer: otel.Tracer(tracing.InstrumentationName),
		logger: slog.Default().With("component", "engine"),
	}

	e.collector = o.collector
	if e.collector == nil && cfg.Telemetry.Metrics.Enabled {
		e.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
	}

	e.backend = o.backend
	if e.backend == nil {
		b, err := persistence.Open(ctx, cfg.Persistence)
		if err != nil {
			return nil, fmt.Errorf("failed to open persistence backend: %w", err)
		}
		e.backend = b
	}

	storeOpts := []store.Option{store.WithPersister(e.backend)}
	ledgerOpts := []audit.Option{
		audit.WithMetrics(e.collector),
		audit.WithDefaultPageLimit(cfg.Engine.Audit.DefaultPageLimit),
	}
	monitorOpts := []compliance.Option{
		compliance.WithTable(compliance.NewTable(cfg.Engine.Compliance)),
		compliance.WithMetrics(e.collector),
	}
	approvalOpts := []approval.Option{approval.WithMetrics(e.collector)}
	if o.now != nil {
		storeOpts = append(storeOpts, store.WithClock(o.now))
		ledgerOpts = append(ledgerOpts, audit.WithClock(o.now))
		monitorOpts = append(monitorOpts, compliance.WithClock(o.now))
		approvalOpts = append(approvalOpts, approval.WithClock(o.now))
	}

	if cfg.Engine.Audit.Archive.Enabled {
		as, err := openArchive(cfg.Engine.Audit.Archive)
		if err != nil {
			e.backend.Close()
			return nil, err
		}
		e.archive = as
		e.recorder = archive.NewRecorder(as, archive.RecorderConfig{
			BufferSize:   cfg.Engine.Audit.Archive.BufferSize,
			WriteTimeout: cfg.Engine.Audit.Archive.WriteTimeout,
		}, e.collector)
		ledgerOpts = append(ledgerOpts, audit.WithArchiver(e.recorder))
	}

	e.policies = store.New(storeOpts...)
	e.ledger = audit.New(cfg.Engine.Audit.Capacity, ledgerOpts...)
	e.monitor = compliance.NewMonitor(cfg.Engine.Compliance.RecentCapacity, monitorOpts...)
	e.approvals = approval.New(e.policies, approvalOpts...)
	e.rolling = rolling.New(cfg.Engine.Metrics.WindowSize)
	e.bus = eventbus.New(cfg.Engine.EventBus.BufferSize, e.collector)

	eval := o.evaluator
	if eval == nil {
		eval = evaluator.NewRuleEvaluator()
	}
	sched, err := scheduler.New(scheduler.Config{
		Interval:          cfg.Engine.Scheduler.Interval,
		BatchSize:         cfg.Engine.Scheduler.BatchSize,
		MaxParallel:       cfg.Engine.Scheduler.MaxParallel,
		EvaluationTimeout: cfg.Engine.Scheduler.EvaluationTimeout,
	}, scheduler.Deps{
		Policies:  e.policies,
		Evaluator: eval,
		Context:   o.context,
		Ledger:    e.ledger,
		Monitor:   e.monitor,
		Metrics:   e.rolling,
		Bus:       e.bus,
		Tokens:    e.tokens,
		Collector: e.collector,
	})
	if err != nil {
		e.closeStores()
		return nil, err
	}
	e.sched = sched

	if err := e.policies.Load(ctx, e.backend); err != nil {
		e.closeStores()
		return nil, err
	}
	e.refreshPolicyCounts()

	e.health = health.New(5 * time.Second)
	e.health.Register("persistence", health.Critical, e.backend.Ping)

	e.logger.Info("engine initialized",
		"persistence", e.backend.Name(),
		"policies", len(e.policies.List(store.Filter{IncludeInactive: true})),
		"archive", cfg.Engine.Audit.Archive.Enabled,
	)
	return e, nil
}

func openArchive(cfg config.ArchiveConfig) (archive.Store, error) {
	switch cfg.Backend {
	case "memory":
		return archive.NewMemoryStore(), nil
	case "sqlite", "":
		s, err := archive.NewSQLiteStore(archive.SQLiteConfig{Path: cfg.SQLitePath})
		if err != nil {
			return nil, fmt.Errorf("failed to open audit archive: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown audit archive backend %q", cfg.Backend)
	}
}

// Open starts the background collaborators: event transport, notifications
// and archive retention. With engine.scheduler.auto_start the scheduler is
// started too.
func (e *Engine) Open(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("engine is closed")
	}
	if e.opened {
		return nil
	}

	if e.cfg.Transport.Enabled {
		sink, err := transport.NewSink(e.cfg.Transport)
		if err != nil {
			return fmt.Errorf("failed to create transport sink: %w", err)
		}
		kinds := make([]eventbus.Kind, 0, len(e.cfg.Transport.Kinds))
		for _, k := range e.cfg.Transport.Kinds {
			kinds = append(kinds, eventbus.Kind(k))
		}
		e.forwarder = transport.NewForwarder(sink, e.bus, transport.Config{
			ReconnectDelay: e.cfg.Transport.ReconnectDelay,
			SendTimeout:    e.cfg.Transport.SendTimeout,
			Kinds:          kinds,
		}, e.collector)
		if err := e.forwarder.Start(ctx); err != nil {
			return err
		}
		fw := e.forwarder
		e.health.Register("transport", health.Optional, func(context.Context) error {
			if !fw.Connected() {
				return fmt.Errorf("%s sink not connected", fw.Stats().Sink)
			}
			return nil
		})
	}

	d, err := notify.FromConfig(e.bus, e.cfg.Notification, e.collector)
	if err != nil {
		e.stopCollaborators()
		return fmt.Errorf("failed to configure notifications: %w", err)
	}
	if d != nil {
		if err := d.Start(ctx); err != nil {
			e.stopCollaborators()
			return err
		}
		e.dispatcher = d
	}

	if e.archive != nil {
		ret := e.cfg.Engine.Audit.Archive.Retention
		pruner := archive.NewPruner(e.archive, archive.RetentionConfig{
			Days:       ret.Days,
			MaxRecords: ret.MaxRecords,
			Schedule:   ret.Schedule,
		})
		e.pruner = archive.NewScheduler(pruner)
		if err := e.pruner.Start(ctx); err != nil {
			e.stopCollaborators()
			return fmt.Errorf("failed to start archive retention: %w", err)
		}
		e.health.Register("archive", health.Optional, func(ctx context.Context) error {
			_, err := e.archive.Count(ctx)
			return err
		})
	}

	e.opened = true
	if e.cfg.Engine.Scheduler.AutoStart {
		e.sched.Start()
	}
	return nil
}

// Close stops the scheduler and every collaborator and releases stores.
// Close is idempotent.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.sched.Stop()
	e.stopCollaborators()
	e.bus.Close()

	errs := e.closeStores()
	e.logger.Info("engine closed")
	return errors.Join(errs...)
}

func (e *Engine) stopCollaborators() {
	if e.forwarder != nil {
		e.forwarder.Stop()
	}
	if e.dispatcher != nil {
		e.dispatcher.Stop()
	}
	if e.pruner != nil {
		e.pruner.Stop()
	}
}

func (e *Engine) closeStores() []error {
	var errs []error
	if e.recorder != nil {
		if err := e.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit recorder: %w", err))
		}
	}
	if e.archive != nil {
		if err := e.archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("audit archive: %w", err))
		}
	}
	if e.backend != nil {
		if err := e.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("persistence: %w", err))
		}
	}
	return errs
}

// Start begins scheduled evaluation. Start is idempotent.
func (e *Engine) Start() { e.sched.Start() }

// Stop halts scheduled evaluation after any in-flight tick finishes. Stop
// is idempotent.
func (e *Engine) Stop() { e.sched.Stop() }

// Tick runs one orchestration cycle immediately.
func (e *Engine) Tick(ctx context.Context) (scheduler.TickReport, bool) {
	return e.sched.Tick(ctx)
}

// Collector returns the metrics collector, or nil when metrics are disabled.
func (e *Engine) Collector() *metrics.Collector { return e.collector }

// Health returns the component health checker.
func (e *Engine) Health() *health.Checker { return e.health }

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config { return e.cfg }

// Transport returns forwarder statistics, or false when transport is off.
func (e *Engine) Transport() (transport.Stats, bool) {
	e.mu.Lock()
	fw := e.forwarder
	e.mu.Unlock()
	if fw == nil {
		return transport.Stats{}, false
	}
	return fw.Stats(), true
}

func (e *Engine) refreshPolicyCounts() {
	counts := e.policies.CountByStatus()
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	e.collector.SetPolicyCounts(out)
}
