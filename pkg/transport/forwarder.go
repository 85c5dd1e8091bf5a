package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/helios/pkg/eventbus"
	"mercator-hq/helios/pkg/telemetry/metrics"
)

const (
	// DefaultReconnectDelay is the fixed wait between reconnect attempts.
	DefaultReconnectDelay = 5 * time.Second

	// DefaultSendTimeout bounds a single send.
	DefaultSendTimeout = 10 * time.Second
)

// Config configures a Forwarder.
type Config struct {
	ReconnectDelay time.Duration
	SendTimeout    time.Duration

	// Kinds restricts forwarding to these event kinds. Empty forwards all.
	Kinds []eventbus.Kind
}

// Stats reports forwarder activity.
type Stats struct {
	Sink       string `json:"sink"`
	Connected  bool   `json:"connected"`
	Sent       uint64 `json:"sent"`
	Failures   uint64 `json:"failures"`
	Reconnects uint64 `json:"reconnects"`
}

// Forwarder delivers bus events to a Sink, reconnecting on failure.
//
// On a failed send the forwarder closes the sink, waits the configured
// backoff and reconnects, retrying indefinitely until it is stopped. The
// event being delivered is kept and sent again after the reconnect, so
// delivery is at least once. Events that arrive while it is reconnecting
// queue in its bus subscription and are subject to drop-oldest.
type Forwarder struct {
	sink    Sink
	bus     *eventbus.Bus
	cfg     Config
	metrics *metrics.Collector
	logger  *slog.Logger

	connected  atomic.Bool
	sent       atomic.Uint64
	failures   atomic.Uint64
	reconnects atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewForwarder creates a forwarder from bus to sink.
func NewForwarder(sink Sink, bus *eventbus.Bus, cfg Config, collector *metrics.Collector) *Forwarder {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	return &Forwarder{
		sink:    sink,
		bus:     bus,
		cfg:     cfg,
		metrics: collector,
		logger:  slog.Default().With("component", "transport", "sink", sink.Name()),
	}
}

// Start subscribes to the bus and begins delivering in the background.
// Events published after Start returns are forwarded.
func (f *Forwarder) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return fmt.Errorf("forwarder already running")
	}

	sub := f.bus.Subscribe("transport."+f.sink.Name(), f.cfg.Kinds...)
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	f.running = true

	go func() {
		defer close(f.done)
		f.run(runCtx, sub)
	}()

	f.logger.Info("transport forwarder started", "reconnect_delay", f.cfg.ReconnectDelay)
	return nil
}

// Stop cancels delivery, closes the sink and waits for the loop to exit.
// An event being retried when Stop is called is abandoned.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	cancel, done := f.cancel, f.done
	f.mu.Unlock()

	cancel()
	<-done
	f.logger.Info("transport forwarder stopped", "sent", f.sent.Load(), "failures", f.failures.Load())
}

// Stats returns a snapshot of delivery counters.
func (f *Forwarder) Stats() Stats {
	return Stats{
		Sink:       f.sink.Name(),
		Connected:  f.connected.Load(),
		Sent:       f.sent.Load(),
		Failures:   f.failures.Load(),
		Reconnects: f.reconnects.Load(),
	}
}

// Connected reports whether the sink currently holds a connection.
func (f *Forwarder) Connected() bool { return f.connected.Load() }

func (f *Forwarder) run(ctx context.Context, sub *eventbus.Subscription) {
	defer sub.Close()
	defer f.disconnect()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			msg, err := Encode(evt)
			if err != nil {
				f.logger.Error("event could not be encoded", "seq", evt.Seq, "kind", evt.Kind, "error", err)
				continue
			}
			if err := f.deliver(ctx, msg); err != nil {
				return
			}
		}
	}
}

// deliver sends msg, reconnecting after each failure, until it succeeds or
// ctx is cancelled.
func (f *Forwarder) deliver(ctx context.Context, msg Message) error {
	for {
		if !f.connected.Load() {
			if err := f.sink.Connect(ctx); err != nil {
				f.logger.Warn("transport connect failed", "error", err, "retry_in", f.cfg.ReconnectDelay)
				if err := f.wait(ctx); err != nil {
					return err
				}
				continue
			}
			f.connected.Store(true)
			f.logger.Debug("transport connected")
		}

		sendCtx, cancel := context.WithTimeout(ctx, f.cfg.SendTimeout)
		err := f.sink.Send(sendCtx, msg)
		cancel()
		if err == nil {
			f.sent.Add(1)
			f.metrics.RecordTransportSend(f.sink.Name(), "ok")
			return nil
		}

		f.failures.Add(1)
		f.metrics.RecordTransportSend(f.sink.Name(), "error")
		f.logger.Warn("transport send failed", "key", msg.Key, "error", err, "retry_in", f.cfg.ReconnectDelay)
		f.disconnect()
		if err := f.wait(ctx); err != nil {
			return err
		}
	}
}

// wait sleeps for the reconnect delay and counts the attempt that follows.
func (f *Forwarder) wait(ctx context.Context) error {
	timer := time.NewTimer(f.cfg.ReconnectDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	f.reconnects.Add(1)
	f.metrics.RecordTransportReconnect(f.sink.Name())
	return nil
}

func (f *Forwarder) disconnect() {
	if !f.connected.Swap(false) {
		return
	}
	if err := f.sink.Close(); err != nil {
		f.logger.Debug("transport close failed", "error", err)
	}
}
