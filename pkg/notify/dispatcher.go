package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/helios/pkg/config"
	"mercator-hq/helios/pkg/eventbus"
	"mercator-hq/helios/pkg/governance"
	"mercator-hq/helios/pkg/telemetry/metrics"
)

// Dispatcher routes bus events to notifiers.
type Dispatcher struct {
	bus         *eventbus.Bus
	notifiers   []Notifier
	minSeverity governance.Severity
	timeout     time.Duration
	metrics     *metrics.Collector
	logger      *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMinSeverity drops violations ranked below s.
func WithMinSeverity(s governance.Severity) Option {
	return func(d *Dispatcher) { d.minSeverity = s }
}

// WithMetrics records dispatch outcomes.
func WithMetrics(c *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = c }
}

// WithTimeout bounds each Notify call.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// NewDispatcher creates a dispatcher for notifiers.
func NewDispatcher(bus *eventbus.Bus, notifiers []Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		bus:       bus,
		notifiers: notifiers,
		timeout:   DefaultWebhookTimeout,
		logger:    slog.Default().With("component", "notify"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FromConfig builds the notifiers enabled in cfg. It returns nil when
// notification is disabled or no notifier is configured.
func FromConfig(bus *eventbus.Bus, cfg config.NotificationConfig, collector *metrics.Collector) (*Dispatcher, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var notifiers []Notifier
	if cfg.Webhook.URL != "" {
		w, err := NewWebhook(cfg.Webhook.URL, cfg.Webhook.Headers, cfg.Webhook.Timeout)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, w)
	}
	if cfg.Log {
		notifiers = append(notifiers, NewLog(nil))
	}
	if len(notifiers) == 0 {
		return nil, nil
	}

	opts := []Option{WithMetrics(collector)}
	if cfg.MinSeverity != "" {
		sev := governance.Severity(cfg.MinSeverity)
		if !sev.Valid() {
			return nil, governance.NewValidationError("notification.min_severity", "unknown severity %q", cfg.MinSeverity)
		}
		opts = append(opts, WithMinSeverity(sev))
	}
	if cfg.Webhook.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Webhook.Timeout))
	}
	return NewDispatcher(bus, notifiers, opts...), nil
}

// Start subscribes to the bus and dispatches in the background.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("dispatcher already running")
	}

	sub := d.bus.Subscribe("notify", eventbus.ViolationDetected, eventbus.ApprovalDecided)
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.running = true

	go func() {
		defer close(d.done)
		defer sub.Close()
		for {
			select {
			case <-runCtx.Done():
				return
			case evt, ok := <-sub.C():
				if !ok {
					return
				}
				d.Dispatch(runCtx, evt)
			}
		}
	}()
	return nil
}

// Stop ends dispatching and waits for the in-flight event to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	cancel()
	<-done
}

// Dispatch sends evt to every notifier. It reports whether the event passed
// the severity filter.
func (d *Dispatcher) Dispatch(ctx context.Context, evt eventbus.Event) bool {
	n, ok := d.build(evt)
	if !ok {
		return false
	}
	if d.minSeverity != "" && n.Kind == eventbus.ViolationDetected && n.Severity.Rank() < d.minSeverity.Rank() {
		for _, nt := range d.notifiers {
			d.metrics.RecordNotification(nt.Name(), "filtered")
		}
		return false
	}

	for _, nt := range d.notifiers {
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := nt.Notify(callCtx, n)
		cancel()
		if err != nil {
			d.metrics.RecordNotification(nt.Name(), "error")
			d.logger.Warn("notification failed", "notifier", nt.Name(), "kind", n.Kind, "seq", n.Seq, "error", err)
			continue
		}
		d.metrics.RecordNotification(nt.Name(), "ok")
	}
	return true
}

func (d *Dispatcher) build(evt eventbus.Event) (Notification, bool) {
	n := Notification{
		Kind:      evt.Kind,
		Seq:       evt.Seq,
		PolicyID:  evt.PolicyID,
		Timestamp: evt.Timestamp,
		Details:   evt.Payload,
	}

	switch p := evt.Payload.(type) {
	case *governance.Violation:
		n.Severity = p.Severity
		n.Summary = fmt.Sprintf("%s violation on policy %s: %s", p.Severity, p.PolicyID, p.Description)
	case *governance.Approval:
		n.Summary = fmt.Sprintf("approval %s for policy %s %s by %s", p.ID, p.PolicyID, p.Status, p.Approver)
	default:
		d.logger.Debug("event payload not recognised", "kind", evt.Kind, "seq", evt.Seq)
		return Notification{}, false
	}
	return n, true
}
