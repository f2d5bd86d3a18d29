// Package snapshot computes a viewer's dashboard from the roster and the
// pending proposal queue.
package snapshot

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"gradegate/internal/dashboard/metrics"
	"gradegate/internal/dashboard/models"
	learner "gradegate/internal/learner/models"
	"gradegate/internal/placement"
	proposal "gradegate/internal/proposal/models"
	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/platform/sentinel"
	"gradegate/pkg/requestcontext"
)

const (
	defaultConcurrency = 8
	defaultBatchSize   = 64
)

// Store is the read side the builder needs.
type Store interface {
	VisibleLearners(ctx context.Context, viewerID id.ViewerID, scope learner.Scope) ([]learner.RosterEntry, error)
	ListPendingForLearners(ctx context.Context, learnerIDs []id.LearnerID) ([]*proposal.Proposal, error)
}

// Builder reads the roster, then loads pending proposals for the visible
// learners in batches fetched concurrently.
type Builder struct {
	store       Store
	concurrency int
	batchSize   int
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type Option func(*Builder)

// WithConcurrency caps in-flight batch reads per build.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithBatchSize sets how many learners one pending query covers.
func WithBatchSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(b *Builder) {
		if t != nil {
			b.tracer = t
		}
	}
}

func New(store Store, opts ...Option) *Builder {
	b := &Builder{
		store:       store,
		concurrency: defaultConcurrency,
		batchSize:   defaultBatchSize,
		tracer:      otel.Tracer("gradegate/internal/dashboard/snapshot"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build computes the snapshot for viewer. A cancelled ctx short-circuits
// before any store read.
func (b *Builder) Build(ctx context.Context, viewer models.Viewer) (*models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := b.tracer.Start(ctx, "dashboard.Build", trace.WithAttributes(
		attribute.String("viewer_id", viewer.ID.String()),
		attribute.String("scope", string(viewer.Scope)),
	))
	defer span.End()

	snap, err := b.build(ctx, viewer)
	if err != nil {
		b.metrics.IncSnapshotError()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	b.metrics.ObserveSnapshot(time.Since(start))
	span.SetAttributes(
		attribute.Int("learners", snap.Metrics.LearnerCount),
		attribute.Int("pending", snap.Metrics.PendingCount),
	)
	return snap, nil
}

func (b *Builder) build(ctx context.Context, viewer models.Viewer) (*models.Snapshot, error) {
	entries, err := b.store.VisibleLearners(ctx, viewer.ID, viewer.Scope)
	if err != nil {
		return nil, readErr(err, "failed to load roster")
	}
	learners := visible(entries, viewer.TenantID)

	batches := chunk(learners, b.batchSize)
	results := make([][]*proposal.Proposal, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			ps, err := b.store.ListPendingForLearners(gctx, batch)
			if err != nil {
				return err
			}
			results[i] = ps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, readErr(err, "failed to load pending proposals")
	}

	pending := make([]*proposal.Proposal, 0)
	for _, ps := range results {
		pending = append(pending, ps...)
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID.String() < pending[j].ID.String()
	})

	return &models.Snapshot{
		ViewerID:    viewer.ID,
		Scope:       viewer.Scope,
		GeneratedAt: requestcontext.Now(ctx),
		Learners:    learners,
		Pending:     pending,
		Metrics:     summarize(len(learners), pending),
	}, nil
}

// visible de-duplicates roster entries and drops learners of another tenant
// when both sides carry one.
func visible(entries []learner.RosterEntry, tenantID id.TenantID) []id.LearnerID {
	seen := make(map[id.LearnerID]struct{}, len(entries))
	out := make([]id.LearnerID, 0, len(entries))
	for _, e := range entries {
		if !tenantID.IsNil() && !e.TenantID.IsNil() && e.TenantID != tenantID {
			continue
		}
		if _, ok := seen[e.LearnerID]; ok {
			continue
		}
		seen[e.LearnerID] = struct{}{}
		out = append(out, e.LearnerID)
	}
	return out
}

func chunk(ids []id.LearnerID, size int) [][]id.LearnerID {
	var out [][]id.LearnerID
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

// summarize expects pending sorted by CreatedAt ascending.
func summarize(learners int, pending []*proposal.Proposal) models.Metrics {
	m := models.Metrics{LearnerCount: learners, PendingCount: len(pending)}
	for _, p := range pending {
		switch p.Direction {
		case placement.DirectionEasier:
			m.EasierCount++
		case placement.DirectionHarder:
			m.HarderCount++
		case placement.DirectionMaintain:
			m.MaintainCount++
		}
	}
	if len(pending) > 0 {
		oldest := pending[0].CreatedAt
		m.OldestPendingAt = &oldest
	}
	return m
}

func readErr(err error, msg string) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "store timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
