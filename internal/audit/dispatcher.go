package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls how the tap buffers events between the engine's
// login/admin paths and the sink.
type Config struct {
	Enabled bool
	// BufferSize is the queue depth before the policy below applies.
	BufferSize int
	// DropIfFull sheds events instead of blocking the caller. The
	// durable audit trail is written elsewhere; shedding here loses
	// observability, never correctness.
	DropIfFull bool
}

// Dispatcher decouples event producers from the sink: Emit enqueues,
// a single goroutine delivers in order, Close drains what was queued.
type Dispatcher struct {
	policy Config
	sink   Sink

	queue chan Event
	quit  chan struct{}

	delivering sync.WaitGroup
	dropped    atomic.Uint64
	closed     atomic.Bool
	closeOnce  sync.Once
}

// NewDispatcher starts the delivery goroutine. Returns nil when the
// tap is disabled; a nil Dispatcher accepts Emit and Close as no-ops.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		policy: cfg,
		sink:   sink,
		queue:  make(chan Event, cfg.BufferSize),
		quit:   make(chan struct{}),
	}

	d.delivering.Add(1)
	go d.deliver()

	return d
}

func (d *Dispatcher) deliver() {
	defer d.delivering.Done()

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			d.drain()
			return
		}
	}
}

// drain flushes events that were queued before Close so a shutdown
// does not eat the tail of a login burst.
func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit enqueues one event. Under DropIfFull a full queue increments
// the dropped counter and returns immediately; otherwise the caller
// blocks until there is room, the context ends, or the tap closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.policy.DropIfFull {
		select {
		case d.queue <- event:
		case <-d.quit:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close stops intake, drains the queue, and waits for delivery to
// finish. Idempotent.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.quit)
		d.delivering.Wait()
	})
}

// Dropped reports how many events were shed under the DropIfFull
// policy since start.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
