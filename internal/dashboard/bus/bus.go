// Package bus carries committed proposal changes to dashboard notifiers. Local
// serves a single instance; Redis fans out across instances.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"gradegate/internal/dashboard/metrics"
	proposal "gradegate/internal/proposal/models"
)

// subscriberBuffer bounds each subscriber's queue. A full queue drops the
// newest change; the notifier's periodic refresh covers the gap.
const subscriberBuffer = 64

// Bus publishes changes and hands them to every subscriber.
type Bus interface {
	Publish(ctx context.Context, change proposal.Change) error
	// Subscribe returns a channel that closes once ctx is done.
	Subscribe(ctx context.Context) (<-chan proposal.Change, error)
}

// Local is an in-process bus.
type Local struct {
	mu      sync.RWMutex
	subs    map[chan proposal.Change]struct{}
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type LocalOption func(*Local)

func WithLocalLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithLocalMetrics(m *metrics.Metrics) LocalOption {
	return func(l *Local) {
		l.metrics = m
	}
}

func NewLocal(opts ...LocalOption) *Local {
	l := &Local{subs: make(map[chan proposal.Change]struct{}), logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Publish never blocks on a slow subscriber.
func (l *Local) Publish(ctx context.Context, change proposal.Change) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.metrics.IncBus("published")
	for ch := range l.subs {
		select {
		case ch <- change:
		default:
			l.metrics.IncBus("dropped")
			l.logger.WarnContext(ctx, "change bus subscriber full, dropping change",
				"proposal_id", change.ProposalID,
				"kind", change.Kind,
			)
		}
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context) (<-chan proposal.Change, error) {
	ch := make(chan proposal.Change, subscriberBuffer)
	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, ch)
		l.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// Subscribers reports the number of live subscriptions.
func (l *Local) Subscribers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}
