// Package notifier keeps one push loop per dashboard subscription.
//
// Each subscription owns a goroutine that blocks only on its own context,
// refresh ticker and trigger channel. Changes from the bus nudge the
// subscriptions watching the changed learner; every nudge re-reads state
// through the snapshot builder rather than carrying a delta.
package notifier

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gradegate/internal/dashboard/metrics"
	"gradegate/internal/dashboard/models"
	proposal "gradegate/internal/proposal/models"
	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/requestcontext"
)

const (
	DefaultRefreshInterval = 15 * time.Second
	DefaultBufferSize      = 16
	// MinBufferSize holds the {scope}-update and approvals-update pair a
	// push queues back to back.
	MinBufferSize = 2
)

// Builder computes a viewer's current snapshot.
type Builder interface {
	Build(ctx context.Context, viewer models.Viewer) (*models.Snapshot, error)
}

// Source yields committed changes until ctx is done.
type Source interface {
	Subscribe(ctx context.Context) (<-chan proposal.Change, error)
}

// Notifier is the registry of live subscriptions.
type Notifier struct {
	builder Builder
	logger  *slog.Logger
	metrics *metrics.Metrics
	refresh time.Duration
	buffer  int

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID atomic.Uint64

	closed   context.Context
	shutdown context.CancelFunc
}

type Option func(*Notifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

// WithRefreshInterval sets how often an idle subscription re-publishes.
func WithRefreshInterval(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.refresh = d
		}
	}
}

// WithBufferSize bounds each subscription's outbound queue. Sizes below
// MinBufferSize are raised to it.
func WithBufferSize(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.buffer = max(size, MinBufferSize)
		}
	}
}

func New(builder Builder, opts ...Option) *Notifier {
	n := &Notifier{
		builder: builder,
		logger:  slog.Default(),
		refresh: DefaultRefreshInterval,
		buffer:  DefaultBufferSize,
		subs:    make(map[uint64]*Subscription),
	}
	n.closed, n.shutdown = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Subscription is one viewer session. Events closes after ctx passed to
// Subscribe is done and the loop has exited.
type Subscription struct {
	id      uint64
	viewer  models.Viewer
	events  chan models.Event
	trigger chan struct{}
	done    chan struct{}
	seq     uint64
	metrics *metrics.Metrics

	mu       sync.RWMutex
	learners map[id.LearnerID]struct{}
}

func (s *Subscription) Events() <-chan models.Event { return s.events }

func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) Viewer() models.Viewer { return s.viewer }

// Subscribe registers viewer and starts its loop. The first events are a
// full {scope}-update followed by approvals-update.
func (n *Notifier) Subscribe(ctx context.Context, viewer models.Viewer) (*Subscription, error) {
	if err := viewer.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n.closed.Err() != nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "dashboard notifier is shutting down")
	}
	sub := &Subscription{
		id:      n.nextID.Add(1),
		viewer:  viewer,
		events:  make(chan models.Event, n.buffer),
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
		metrics: n.metrics,
	}
	n.mu.Lock()
	n.subs[sub.id] = sub
	n.mu.Unlock()
	n.metrics.SubscriptionOpened()

	n.logger.InfoContext(ctx, "dashboard subscription opened",
		"viewer_id", viewer.ID,
		"scope", viewer.Scope,
		"subscription", sub.id,
	)
	ctx, cancel := context.WithCancel(requestcontext.WithoutTime(ctx))
	detach := context.AfterFunc(n.closed, cancel)
	go func() {
		defer cancel()
		defer detach()
		n.run(ctx, sub)
	}()
	return sub, nil
}

// Close ends every subscription and rejects new ones. Open streams see their
// events channel close and return.
func (n *Notifier) Close() {
	n.shutdown()
}

func (n *Notifier) run(ctx context.Context, sub *Subscription) {
	defer func() {
		n.mu.Lock()
		delete(n.subs, sub.id)
		n.mu.Unlock()
		close(sub.events)
		close(sub.done)
		n.metrics.SubscriptionClosed()
		n.logger.InfoContext(context.WithoutCancel(ctx), "dashboard subscription closed",
			"viewer_id", sub.viewer.ID,
			"subscription", sub.id,
		)
	}()

	n.push(ctx, sub)

	ticker := time.NewTicker(n.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.push(ctx, sub)
		case <-sub.trigger:
			n.push(ctx, sub)
		}
	}
}

func (n *Notifier) push(ctx context.Context, sub *Subscription) {
	if ctx.Err() != nil {
		return
	}
	snap, err := n.builder.Build(ctx, sub.viewer)
	if err != nil {
		if ctx.Err() == nil {
			n.logger.WarnContext(ctx, "dashboard snapshot failed",
				"viewer_id", sub.viewer.ID,
				"subscription", sub.id,
				"error", err,
			)
		}
		return
	}
	sub.watch(snap.Learners)
	sub.send(models.UpdateEventFor(sub.viewer.Scope), snap.GeneratedAt, snap)
	sub.send(models.EventApprovalsUpdate, snap.GeneratedAt, models.ApprovalsOf(snap))
}

// send queues an event, evicting the oldest queued one when full. Only the
// subscription's own goroutine sends, so the loop terminates.
func (s *Subscription) send(eventType models.EventType, at time.Time, payload any) {
	s.seq++
	ev := models.Event{Type: eventType, ID: strconv.FormatUint(s.seq, 10), At: at, Payload: payload}
	for {
		select {
		case s.events <- ev:
			s.metrics.IncSent(string(eventType))
			return
		default:
		}
		select {
		case <-s.events:
			s.metrics.IncDropped()
		default:
		}
	}
}

func (s *Subscription) watch(learners []id.LearnerID) {
	set := make(map[id.LearnerID]struct{}, len(learners))
	for _, l := range learners {
		set[l] = struct{}{}
	}
	s.mu.Lock()
	s.learners = set
	s.mu.Unlock()
}

// interested reports whether change can alter this subscription's snapshot.
// Roster changes match on viewer. Until a first snapshot has loaded the watch
// set, any change in the viewer's tenant matches.
func (s *Subscription) interested(change proposal.Change) bool {
	if change.Kind == proposal.ChangeRostered {
		return change.ViewerID == s.viewer.ID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.learners == nil {
		return s.viewer.TenantID.IsNil() || change.TenantID.IsNil() || s.viewer.TenantID == change.TenantID
	}
	_, ok := s.learners[change.LearnerID]
	return ok
}

// nudge requests a refresh. A refresh already pending absorbs the nudge.
func (s *Subscription) nudge() {
	select {
	case s.trigger <- struct{}{}:
	default:
		s.metrics.IncTriggerMerged()
	}
}

// Notify nudges every subscription interested in change and returns how many
// were nudged.
func (n *Notifier) Notify(change proposal.Change) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	nudged := 0
	for _, sub := range n.subs {
		if sub.interested(change) {
			sub.nudge()
			nudged++
		}
	}
	return nudged
}

// Run feeds changes from src into Notify until ctx is done.
func (n *Notifier) Run(ctx context.Context, src Source) error {
	changes, err := src.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			nudged := n.Notify(change)
			n.logger.DebugContext(ctx, "change fanned out",
				"proposal_id", change.ProposalID,
				"kind", change.Kind,
				"subscriptions", nudged,
			)
		}
	}
}

// Active reports the number of live subscriptions.
func (n *Notifier) Active() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}
