package eventbus

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/helios/pkg/telemetry/metrics"
)

// DefaultBufferSize is the per-subscription queue length.
const DefaultBufferSize = 100

// Bus is a non-blocking publish/subscribe hub.
//
// Every subscription owns a bounded queue. When a queue is full the oldest
// queued event is discarded to make room, so a slow consumer loses history
// but always sees the most recent events, and Publish never waits on it.
// Drops are counted per subscription (Subscription.Dropped) and exported as
// helios_engine_events_dropped_total.
//
// Bus is safe for concurrent use. Sequence numbers are assigned under the
// bus lock, so every subscriber observes events in publication order.
type Bus struct {
	mu         sync.Mutex
	subs       map[uint64]*Subscription
	nextSub    uint64
	seq        uint64
	bufferSize int
	closed     bool

	now     func() time.Time
	metrics *metrics.Collector
	logger  *slog.Logger
}

// New creates a bus whose subscriptions queue up to bufferSize events.
func New(bufferSize int, collector *metrics.Collector) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
		now:        func() time.Time { return time.Now().UTC() },
		metrics:    collector,
		logger:     slog.Default().With("component", "eventbus"),
	}
}

// Subscription receives events from a Bus.
type Subscription struct {
	id      uint64
	name    string
	kinds   map[Kind]struct{}
	ch      chan Event
	bus     *Bus
	dropped atomic.Uint64
	once    sync.Once
}

// C returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Event { return s.ch }

// Name returns the subscriber name used in logs and metrics.
func (s *Subscription) Name() string { return s.name }

// Dropped returns the number of events discarded for this subscriber.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close ends the subscription. Close is idempotent.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

func (s *Subscription) wants(k Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// offer enqueues evt, dropping the oldest queued event when full, and
// reports whether a drop happened. The bus lock is held, so offers to one
// subscription never interleave.
func (s *Subscription) offer(evt Event) (dropped bool) {
	for {
		select {
		case s.ch <- evt:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
			dropped = true
		default:
			// Consumer drained the queue between the two selects.
		}
	}
}

// Subscribe registers a subscriber. With no kinds every event is delivered;
// otherwise only the listed kinds are. The name labels the drop counter and
// log lines. On a closed bus the returned subscription is already closed.
//
// The caller must Close the subscription when done:
//
//	sub := bus.Subscribe("notify", eventbus.ViolationDetected)
//	defer sub.Close()
//	for evt := range sub.C() {
//		handle(evt)
//	}
func (b *Bus) Subscribe(name string, kinds ...Kind) *Subscription {
	sub := &Subscription{
		name: name,
		ch:   make(chan Event, b.bufferSize),
		bus:  b,
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	b.nextSub++
	sub.id = b.nextSub
	b.subs[sub.id] = sub

	b.logger.Debug("subscriber added", "subscriber", name, "kinds", kinds)
	return sub
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s.id)
	b.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

// Publish assigns the next sequence number and timestamp and delivers the
// event to every matching subscriber. It never blocks.
func (b *Bus) Publish(kind Kind, policyID string, payload any) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	evt := Event{
		Seq:       b.seq,
		Kind:      kind,
		PolicyID:  policyID,
		Timestamp: b.now(),
		Payload:   payload,
	}
	if b.closed {
		return evt
	}

	for _, sub := range b.subs {
		if !sub.wants(kind) {
			continue
		}
		if sub.offer(evt) {
			b.metrics.RecordEventDropped(sub.name)
			b.logger.Debug("event dropped for slow subscriber", "subscriber", sub.name, "kind", kind)
		}
	}
	b.metrics.RecordEventPublished(string(kind))
	return evt
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// LastSeq returns the sequence number of the last published event.
func (b *Bus) LastSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Close ends every subscription. Later publishes are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*Subscription)
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
}
