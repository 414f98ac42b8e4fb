package rolecalc

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// auditDispatcher hands engine events (sign-ins, calculations, admin actions)
// to the configured sink on a single goroutine, so a slow sink never sits on
// the calculation path. A nil dispatcher is valid and discards everything.
type auditDispatcher struct {
	cfg    AuditConfig
	sink   AuditSink
	logger *slog.Logger

	queue   chan AuditEvent
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup

	closed  atomic.Bool
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger *slog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &auditDispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		queue:  make(chan AuditEvent, cfg.BufferSize),
		stop:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *auditDispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain flushes whatever was queued before Close.
func (d *auditDispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

// deliver passes one event to the sink. A panicking sink loses that event
// only; the loop keeps running.
func (d *auditDispatcher) deliver(ev AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("audit sink panicked", "event", ev.EventType, "panic", r)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev. With DropIfFull a full queue drops the event and counts it;
// otherwise Emit waits for room, for ctx to end or for Close.
func (d *auditDispatcher) Emit(ctx context.Context, ev AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			if d.dropped.Add(1) == 1 {
				d.logger.Warn("audit queue full; dropping events", "event", ev.EventType, "buffer", d.cfg.BufferSize)
			}
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close refuses further events and flushes the queue into the sink.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopped.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped counts events lost to a full queue.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed counts events whose sink call panicked.
func (d *auditDispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
