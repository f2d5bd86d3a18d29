package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gradegate/internal/dashboard/bus"
	"gradegate/internal/dashboard/metrics"
	"gradegate/internal/dashboard/models"
	"gradegate/internal/dashboard/snapshot"
	learner "gradegate/internal/learner/models"
	proposal "gradegate/internal/proposal/models"
	"gradegate/internal/storage"
	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/requestcontext"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBuilder struct {
	learners []id.LearnerID
	calls    atomic.Int32
	gate     chan struct{}
	mu       sync.Mutex
	err      error
}

func (f *fakeBuilder) Build(ctx context.Context, viewer models.Viewer) (*models.Snapshot, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &models.Snapshot{
		ViewerID:    viewer.ID,
		Scope:       viewer.Scope,
		GeneratedAt: time.Now(),
		Learners:    f.learners,
		Pending:     []*proposal.Proposal{},
		Metrics:     models.Metrics{LearnerCount: len(f.learners)},
	}, nil
}

func (f *fakeBuilder) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func teacher() models.Viewer {
	return models.Viewer{ID: id.ViewerID(uuid.New()), Scope: learner.ScopeTeacher}
}

func next(t *testing.T, sub *Subscription) models.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return models.Event{}
	}
}

func assertQuiet(t *testing.T, sub *Subscription, d time.Duration) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(d):
	}
}

func TestSubscribeSendsSnapshotThenApprovals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := New(&fakeBuilder{}, quiet(), WithRefreshInterval(time.Hour))

	parent := models.Viewer{ID: id.ViewerID(uuid.New()), Scope: learner.ScopeParent}
	sub, err := n.Subscribe(ctx, parent)
	require.NoError(t, err)

	first, second := next(t, sub), next(t, sub)
	assert.Equal(t, models.EventParentUpdate, first.Type)
	assert.Equal(t, "1", first.ID)
	assert.IsType(t, &models.Snapshot{}, first.Payload)
	assert.Equal(t, models.EventApprovalsUpdate, second.Type)
	assert.Equal(t, "2", second.ID)
	assert.IsType(t, models.Approvals{}, second.Payload)
	assertQuiet(t, sub, 50*time.Millisecond)
}

func TestSubscribeRejectsAnonymousViewer(t *testing.T) {
	n := New(&fakeBuilder{}, quiet())
	_, err := n.Subscribe(context.Background(), models.Viewer{Scope: learner.ScopeTeacher})
	require.Error(t, err)
	_, err = n.Subscribe(context.Background(), models.Viewer{ID: id.ViewerID(uuid.New()), Scope: "principal"})
	require.Error(t, err)
	assert.Zero(t, n.Active())
}

func TestNotifyOnlyNudgesWatchers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watched := id.LearnerID(uuid.New())
	n := New(&fakeBuilder{learners: []id.LearnerID{watched}}, quiet(), WithRefreshInterval(time.Hour))

	sub, err := n.Subscribe(ctx, teacher())
	require.NoError(t, err)
	next(t, sub)
	next(t, sub)

	assert.Zero(t, n.Notify(proposal.Change{LearnerID: id.LearnerID(uuid.New())}))
	assertQuiet(t, sub, 50*time.Millisecond)

	assert.Equal(t, 1, n.Notify(proposal.Change{LearnerID: watched, Kind: proposal.ChangeCreated}))
	assert.Equal(t, models.EventTeacherUpdate, next(t, sub).Type)
	assert.Equal(t, models.EventApprovalsUpdate, next(t, sub).Type)
}

func TestRefreshIntervalRepublishes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	builder := &fakeBuilder{}
	n := New(builder, quiet(), WithRefreshInterval(10*time.Millisecond))

	sub, err := n.Subscribe(ctx, teacher())
	require.NoError(t, err)
	for range 6 {
		next(t, sub)
	}
	assert.GreaterOrEqual(t, builder.calls.Load(), int32(3))
}

func TestCancelClosesAndDeregisters(t *testing.T) {
	builder := &fakeBuilder{}
	n := New(builder, quiet(), WithRefreshInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := n.Subscribe(ctx, teacher())
	require.NoError(t, err)
	require.Equal(t, 1, n.Active())
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription loop did not exit")
	}
	assert.Zero(t, n.Active())
	calls := builder.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, builder.calls.Load(), "no snapshot work after cancel")

	for range sub.Events() {
	}
}

func TestSubscribeWithCancelledContext(t *testing.T) {
	builder := &fakeBuilder{}
	n := New(builder, quiet())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := n.Subscribe(ctx, teacher())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, builder.calls.Load())
}

func TestCloseEndsSubscriptions(t *testing.T) {
	builder := &fakeBuilder{}
	n := New(builder, quiet())

	sub, err := n.Subscribe(context.Background(), teacher())
	require.NoError(t, err)
	next(t, sub)
	next(t, sub)

	n.Close()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription survived Close")
	}
	assert.Zero(t, n.Active())

	_, err = n.Subscribe(context.Background(), teacher())
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeUnavailable, dErrors.CodeOf(err))
}

func TestTriggersCoalesceWhileBuilding(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watched := id.LearnerID(uuid.New())
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	builder := &fakeBuilder{learners: []id.LearnerID{watched}}
	n := New(builder, quiet(), WithMetrics(m), WithRefreshInterval(time.Hour))

	sub, err := n.Subscribe(ctx, teacher())
	require.NoError(t, err)
	next(t, sub)
	next(t, sub)

	builder.gate = make(chan struct{})
	n.Notify(proposal.Change{LearnerID: watched})
	require.Eventually(t, func() bool { return builder.calls.Load() == 2 }, time.Second, time.Millisecond)
	for range 5 {
		n.Notify(proposal.Change{LearnerID: watched})
	}
	close(builder.gate)

	next(t, sub)
	next(t, sub)
	next(t, sub)
	next(t, sub)
	assertQuiet(t, sub, 50*time.Millisecond)
	assert.Equal(t, int32(3), builder.calls.Load())
	assert.Equal(t, float64(4), testutil.ToFloat64(m.TriggersMerged))
}

func TestSlowConsumerDropsOldest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	builder := &fakeBuilder{}
	n := New(builder, quiet(), WithMetrics(m), WithBufferSize(2), WithRefreshInterval(2*time.Millisecond))

	sub, err := n.Subscribe(ctx, teacher())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return builder.calls.Load() >= 5 }, 2*time.Second, time.Millisecond)
	cancel()
	<-sub.Done()

	var ids []string
	for ev := range sub.Events() {
		ids = append(ids, ev.ID)
	}
	require.Len(t, ids, 2)
	assert.NotEqual(t, "1", ids[0], "oldest events were evicted")
	assert.Greater(t, testutil.ToFloat64(m.EventsDropped), float64(0))
}

func TestBuildErrorKeepsSubscriptionAlive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	builder := &fakeBuilder{}
	builder.setErr(errors.New("store down"))
	n := New(builder, quiet(), WithRefreshInterval(5*time.Millisecond))

	sub, err := n.Subscribe(ctx, teacher())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return builder.calls.Load() >= 2 }, time.Second, time.Millisecond)
	assert.Empty(t, sub.Events())

	builder.setErr(nil)
	assert.Equal(t, models.EventTeacherUpdate, next(t, sub).Type)
}

func TestRunConsumesBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watched := id.LearnerID(uuid.New())
	n := New(&fakeBuilder{learners: []id.LearnerID{watched}}, quiet(), WithRefreshInterval(time.Hour))
	local := bus.NewLocal()

	runDone := make(chan error, 1)
	go func() { runDone <- n.Run(ctx, local) }()
	require.Eventually(t, func() bool { return local.Subscribers() == 1 }, time.Second, time.Millisecond)

	sub, err := n.Subscribe(ctx, teacher())
	require.NoError(t, err)
	next(t, sub)
	next(t, sub)

	require.NoError(t, local.Publish(ctx, proposal.Change{LearnerID: watched, Kind: proposal.ChangeApproved}))
	assert.Equal(t, models.EventTeacherUpdate, next(t, sub).Type)

	cancel()
	assert.NoError(t, <-runDone)
	<-sub.Done()
}

func TestRefreshIsStampedWithCurrentTime(t *testing.T) {
	pinned := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ctx, cancel := context.WithCancel(requestcontext.WithTime(context.Background(), pinned))
	defer cancel()
	n := New(snapshot.New(storage.NewMemory()), quiet(), WithRefreshInterval(20*time.Millisecond))

	sub, err := n.Subscribe(ctx, teacher())
	require.NoError(t, err)
	first := next(t, sub)
	next(t, sub)
	refreshed := next(t, sub)
	require.Equal(t, models.EventTeacherUpdate, refreshed.Type)

	assert.True(t, first.At.After(pinned), "loop must not inherit the request time")
	assert.True(t, refreshed.At.After(first.At))
	snap, ok := refreshed.Payload.(*models.Snapshot)
	require.True(t, ok)
	assert.Equal(t, refreshed.At, snap.GeneratedAt)
}

func TestSmallBufferKeepsInitialPair(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := New(&fakeBuilder{}, quiet(), WithBufferSize(1), WithRefreshInterval(time.Hour))

	sub, err := n.Subscribe(ctx, teacher())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(sub.Events()) == MinBufferSize }, time.Second, time.Millisecond)

	first, second := next(t, sub), next(t, sub)
	assert.Equal(t, models.EventTeacherUpdate, first.Type)
	assert.Equal(t, "1", first.ID)
	assert.Equal(t, models.EventApprovalsUpdate, second.Type)
	assert.Equal(t, MinBufferSize, cap(sub.Events()))
}

func TestUnloadedSubscriptionFollowsTenant(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	builder := &fakeBuilder{}
	builder.setErr(errors.New("store down"))
	n := New(builder, quiet(), WithRefreshInterval(time.Hour))

	viewer := teacher()
	viewer.TenantID = id.TenantID(uuid.New())
	sub, err := n.Subscribe(ctx, viewer)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return builder.calls.Load() == 1 }, time.Second, time.Millisecond)

	other := proposal.Change{Kind: proposal.ChangeCreated, LearnerID: id.LearnerID(uuid.New()), TenantID: id.TenantID(uuid.New())}
	assert.Zero(t, n.Notify(other))

	builder.setErr(nil)
	same := proposal.Change{Kind: proposal.ChangeCreated, LearnerID: id.LearnerID(uuid.New()), TenantID: viewer.TenantID}
	assert.Equal(t, 1, n.Notify(same))
	assert.Equal(t, models.EventTeacherUpdate, next(t, sub).Type)
	assert.Equal(t, models.EventApprovalsUpdate, next(t, sub).Type)

	assert.Zero(t, n.Notify(same), "loaded watch set no longer matches by tenant")
}

func TestRosterChangeRefreshesViewer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := storage.NewMemory()
	n := New(snapshot.New(store), quiet(), WithRefreshInterval(time.Hour))

	viewer := teacher()
	sub, err := n.Subscribe(ctx, viewer)
	require.NoError(t, err)
	empty := next(t, sub).Payload.(*models.Snapshot)
	next(t, sub)
	assert.Empty(t, empty.Learners)

	added := id.LearnerID(uuid.New())
	require.NoError(t, store.AddToRoster(ctx, learner.RosterEntry{ViewerID: viewer.ID, Scope: viewer.Scope, LearnerID: added}))

	assert.Zero(t, n.Notify(proposal.Change{Kind: proposal.ChangeRostered, ViewerID: id.ViewerID(uuid.New()), LearnerID: added}))
	assert.Equal(t, 1, n.Notify(proposal.Change{Kind: proposal.ChangeRostered, ViewerID: viewer.ID, LearnerID: added}))

	refreshed := next(t, sub).Payload.(*models.Snapshot)
	next(t, sub)
	assert.Equal(t, []id.LearnerID{added}, refreshed.Learners)
	assert.Equal(t, 1, n.Notify(proposal.Change{Kind: proposal.ChangeCreated, LearnerID: added}))
}
