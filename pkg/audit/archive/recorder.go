package archive

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/helios/pkg/governance"
	"mercator-hq/helios/pkg/telemetry/metrics"
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// BufferSize is the queue length.
	// Default: 1000
	BufferSize int

	// WriteTimeout bounds one store write.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// Recorder writes evicted audit records to a Store asynchronously.
type Recorder struct {
	store   Store
	config  RecorderConfig
	queue   chan governance.AuditRecord
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	metrics *metrics.Collector
	logger  *slog.Logger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewRecorder starts a recorder writing to store.
func NewRecorder(store Store, cfg RecorderConfig, collector *metrics.Collector) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		store:   store,
		config:  cfg,
		queue:   make(chan governance.AuditRecord, cfg.BufferSize),
		done:    make(chan struct{}),
		metrics: collector,
		logger:  slog.Default().With("component", "audit.archive.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("audit archive recorder initialized",
		"buffer_size", cfg.BufferSize,
		"write_timeout", cfg.WriteTimeout,
	)
	return r
}

// Archive enqueues rec without blocking. Records arriving while the queue is
// full or after Close are dropped.
func (r *Recorder) Archive(rec governance.AuditRecord) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.drop(rec, "recorder closed")
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.drop(rec, "queue full")
	}
}

func (r *Recorder) drop(rec governance.AuditRecord, reason string) {
	r.dropped.Add(1)
	r.metrics.RecordArchiveWrite("dropped")
	r.logger.Warn("dropping audit record",
		"record_id", rec.ID,
		"reason", reason,
		"queue_capacity", r.config.BufferSize,
	)
}

// Dropped returns the number of records dropped so far.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close drains the queue and stops the worker. It does not close the store.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		close(r.done)
		r.wg.Wait()
		r.logger.Info("audit archive recorder shut down")
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.queue:
			r.write(rec)

		case <-r.done:
			for {
				select {
				case rec := <-r.queue:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec governance.AuditRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	if err := r.store.Store(ctx, rec); err != nil {
		r.metrics.RecordArchiveWrite("error")
		r.logger.Error("failed to archive audit record", "record_id", rec.ID, "error", err)
		return
	}
	r.metrics.RecordArchiveWrite("success")
}
