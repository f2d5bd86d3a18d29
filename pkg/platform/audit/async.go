package audit

import (
	"context"
	"log/slog"
	"time"
)

// Sink delivers a batch of events somewhere durable.
type Sink interface {
	Deliver(ctx context.Context, events []Event) error
}

// Async buffers events in a RingBuffer and delivers them to a Sink from a
// single background loop. Emit never blocks; a full buffer drops the oldest
// event.
type Async struct {
	sink     Sink
	buffer   *RingBuffer
	breaker  *CircuitBreaker
	logger   *slog.Logger
	metrics  *Metrics
	interval time.Duration
	batch    int
	wake     chan struct{}
	done     chan struct{}
}

// AsyncOption configures Async.
type AsyncOption func(*Async)

func WithLogger(logger *slog.Logger) AsyncOption {
	return func(a *Async) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) AsyncOption {
	return func(a *Async) {
		a.metrics = m
	}
}

func WithBufferSize(n int) AsyncOption {
	return func(a *Async) {
		a.buffer = NewRingBuffer(n)
	}
}

func WithFlushInterval(d time.Duration) AsyncOption {
	return func(a *Async) {
		if d > 0 {
			a.interval = d
		}
	}
}

func WithBreaker(cb *CircuitBreaker) AsyncOption {
	return func(a *Async) {
		if cb != nil {
			a.breaker = cb
		}
	}
}

func NewAsync(sink Sink, opts ...AsyncOption) *Async {
	a := &Async{
		sink:     sink,
		buffer:   NewRingBuffer(1024),
		breaker:  NewCircuitBreaker(5, 30*time.Second),
		logger:   slog.Default(),
		interval: time.Second,
		batch:    100,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Emit enqueues event for delivery. It always succeeds.
func (a *Async) Emit(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if a.buffer.Enqueue(event) {
		a.metrics.IncDropped()
	}
	a.metrics.IncEmitted()
	a.metrics.SetBuffered(a.buffer.Len())
	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run delivers buffered events until ctx is cancelled, then makes one last
// flush attempt with a short deadline.
func (a *Async) Run(ctx context.Context) error {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			a.flush(flushCtx)
			cancel()
			return nil
		case <-ticker.C:
			a.flush(ctx)
		case <-a.wake:
			a.flush(ctx)
		}
	}
}

// Done is closed when Run returns.
func (a *Async) Done() <-chan struct{} {
	return a.done
}

func (a *Async) flush(ctx context.Context) {
	for {
		if !a.breaker.Allow() {
			return
		}
		events := a.buffer.DequeueBatch(a.batch)
		if len(events) == 0 {
			return
		}
		if err := a.sink.Deliver(ctx, events); err != nil {
			a.buffer.Requeue(events)
			a.metrics.IncDeliverFailures()
			open := a.breaker.RecordFailure()
			a.metrics.SetBreakerState(open)
			a.logger.WarnContext(ctx, "audit delivery failed",
				"events", len(events),
				"breaker_open", open,
				"error", err,
			)
			return
		}
		a.breaker.RecordSuccess()
		a.metrics.SetBreakerState(false)
		a.metrics.AddDelivered(len(events))
		a.metrics.SetBuffered(a.buffer.Len())
	}
}

// Len reports the number of undelivered events.
func (a *Async) Len() int {
	return a.buffer.Len()
}

// Deliver lets Memory act as a Sink.
func (m *Memory) Deliver(ctx context.Context, events []Event) error {
	for _, e := range events {
		if err := m.Emit(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
