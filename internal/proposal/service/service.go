package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	learner "gradegate/internal/learner/models"
	proposalmetrics "gradegate/internal/proposal/metrics"
	"gradegate/internal/proposal/models"
	"gradegate/internal/storage"
	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/platform/audit"
	"gradegate/pkg/platform/sentinel"
	"gradegate/pkg/requestcontext"
)

// Store persists proposals. CreatePending must reject a second pending
// proposal for the same (learner, subject) with sentinel.ErrConflict, and
// ApplyDecision must commit the status change and level update together.
type Store interface {
	CreatePending(ctx context.Context, p *models.Proposal) error
	FindByID(ctx context.Context, proposalID id.ProposalID) (*models.Proposal, error)
	FindPending(ctx context.Context, learnerID id.LearnerID, subject id.Subject) (*models.Proposal, error)
	ListPending(ctx context.Context, learnerID id.LearnerID) ([]*models.Proposal, error)
	ApplyDecision(ctx context.Context, proposalID id.ProposalID, d models.Decision, now time.Time) (*models.Proposal, error)
}

// LearnerStore reads the inputs of the propose pipeline.
type LearnerStore interface {
	FindResponses(ctx context.Context, learnerID id.LearnerID, subject id.Subject, window *learner.DateRange) ([]learner.Response, error)
	GetSubjectLevel(ctx context.Context, learnerID id.LearnerID, subject id.Subject) (*learner.SubjectLevel, error)
}

// ChangePublisher nudges live dashboards after a committed transition.
type ChangePublisher interface {
	Publish(ctx context.Context, change models.Change) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the proposal lifecycle manager.
type Service struct {
	proposals Store
	learners  LearnerStore
	changes   ChangePublisher
	auditor   AuditPublisher
	logger    *slog.Logger
	metrics   *proposalmetrics.Metrics
	tracer    trace.Tracer

	retryAttempts int
	retryInitial  time.Duration
	retryMax      time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *proposalmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithChangePublisher(p ChangePublisher) Option {
	return func(s *Service) {
		s.changes = p
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithDecideRetry bounds how Decide retries transient store failures.
// attempts counts the first try; 1 disables retrying.
func WithDecideRetry(attempts int, initial, maxWait time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.retryAttempts = attempts
		}
		if initial > 0 {
			s.retryInitial = initial
		}
		if maxWait > 0 {
			s.retryMax = maxWait
		}
	}
}

// New constructs a Service. learners may be nil when Propose is unused.
func New(proposals Store, learners LearnerStore, opts ...Option) *Service {
	s := &Service{
		proposals:     proposals,
		learners:      learners,
		logger:        slog.Default(),
		tracer:        otel.Tracer("gradegate/internal/proposal/service"),
		retryAttempts: 3,
		retryInitial:  50 * time.Millisecond,
		retryMax:      time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a PENDING proposal. A pending proposal for the same
// (learner, subject) yields CodeConflict naming the existing proposal.
func (s *Service) Create(ctx context.Context, req models.CreateRequest) (*models.Proposal, error) {
	ctx, span := s.tracer.Start(ctx, "proposal.Create", trace.WithAttributes(
		attribute.String("learner_id", req.LearnerID.String()),
		attribute.String("subject", string(req.Subject)),
	))
	defer span.End()

	p, err := models.NewProposal(id.NewProposalID(), req, requestcontext.Now(ctx))
	if err != nil {
		return nil, endSpan(span, err)
	}

	if err := s.proposals.CreatePending(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncConflict()
			return nil, endSpan(span, s.conflictFor(ctx, req.LearnerID, req.Subject))
		}
		return nil, endSpan(span, wrapStoreErr(err, "failed to create proposal"))
	}

	s.metrics.IncCreated(string(p.Direction))
	s.logger.InfoContext(ctx, "proposal created",
		"proposal_id", p.ID,
		"learner_id", p.LearnerID,
		"subject", p.Subject,
		"from_level", p.FromLevel,
		"to_level", p.ToLevel,
		"direction", p.Direction,
	)
	s.afterTransition(ctx, p, audit.ActionProposalCreated, p.CreatedBy, "")
	return p, nil
}

func (s *Service) conflictFor(ctx context.Context, learnerID id.LearnerID, subject id.Subject) error {
	const msg = "a decision is already pending for this subject"
	existing, err := s.proposals.FindPending(ctx, learnerID, subject)
	if err != nil {
		// The pending proposal may have been decided in between.
		return dErrors.New(dErrors.CodeConflict, msg)
	}
	return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("%s (proposal %s)", msg, existing.ID))
}

// Decide records a human decision. Approval applies ToLevel to the learner's
// subject level in the same store transaction. Transient store failures are
// retried with exponential backoff; if they persist the proposal stays
// PENDING and CodeUnavailable is returned.
func (s *Service) Decide(ctx context.Context, proposalID id.ProposalID, d models.Decision) (*models.Proposal, error) {
	ctx, span := s.tracer.Start(ctx, "proposal.Decide", trace.WithAttributes(
		attribute.String("proposal_id", proposalID.String()),
		attribute.Bool("approve", d.Approve),
	))
	defer span.End()

	if proposalID.IsNil() {
		return nil, endSpan(span, dErrors.New(dErrors.CodeValidation, "proposal_id is required"))
	}
	if err := d.Validate(); err != nil {
		return nil, endSpan(span, err)
	}

	start := time.Now()
	now := requestcontext.Now(ctx)
	var decided *models.Proposal
	op := func() error {
		p, err := s.proposals.ApplyDecision(ctx, proposalID, d, now)
		if err == nil {
			decided = p
			return nil
		}
		if errors.Is(err, sentinel.ErrUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		s.metrics.IncDecideRetry()
		s.logger.WarnContext(ctx, "decide retrying after transient store failure",
			"proposal_id", proposalID,
			"wait", wait,
			"error", err,
		)
	}
	err := backoff.RetryNotify(op, s.decideBackoff(ctx), notify)
	s.metrics.ObserveDecideLatency(time.Since(start))
	if err != nil {
		return nil, endSpan(span, s.decideErr(err))
	}

	outcome := "rejected"
	action := audit.ActionProposalRejected
	if decided.Status == models.StatusApproved {
		outcome = "approved"
		action = audit.ActionProposalApproved
	}
	s.metrics.IncDecision(outcome)
	s.metrics.ObserveTimeToDecision(now.Sub(decided.CreatedAt))
	s.logger.InfoContext(ctx, "proposal decided",
		"proposal_id", decided.ID,
		"learner_id", decided.LearnerID,
		"subject", decided.Subject,
		"status", decided.Status,
		"decided_by", d.DecidedBy,
	)
	s.afterTransition(ctx, decided, action, d.DecidedBy, d.Notes)
	return decided, nil
}

func (s *Service) decideBackoff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.retryInitial
	exp.MaxInterval = s.retryMax
	exp.MaxElapsedTime = 0
	var b backoff.BackOff = exp
	if s.retryAttempts > 1 {
		b = backoff.WithMaxRetries(b, uint64(s.retryAttempts-1))
	} else {
		b = &backoff.StopBackOff{}
	}
	return backoff.WithContext(b, ctx)
}

func (s *Service) decideErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "proposal not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidState, "this request was already decided")
	case errors.Is(err, storage.ErrNotEnrolled):
		return dErrors.New(dErrors.CodeInvariantViolation, "learner has no level for this subject; enroll before approving")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "store temporarily unavailable; the proposal is still pending")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "decision timed out; the proposal is still pending")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply decision")
	}
}

// ListPending returns the learner's pending proposals oldest first.
func (s *Service) ListPending(ctx context.Context, learnerID id.LearnerID) ([]*models.Proposal, error) {
	if learnerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "learner_id is required")
	}
	ps, err := s.proposals.ListPending(ctx, learnerID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list pending proposals")
	}
	return ps, nil
}

func (s *Service) Get(ctx context.Context, proposalID id.ProposalID) (*models.Proposal, error) {
	if proposalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "proposal_id is required")
	}
	p, err := s.proposals.FindByID(ctx, proposalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "proposal not found")
		}
		return nil, wrapStoreErr(err, "failed to load proposal")
	}
	return p, nil
}

// afterTransition fans the committed change out. Failures are logged only.
func (s *Service) afterTransition(ctx context.Context, p *models.Proposal, action audit.Action, actor, notes string) {
	now := requestcontext.Now(ctx)
	if s.changes != nil {
		if err := s.changes.Publish(ctx, models.ChangeFor(p, now)); err != nil {
			s.logger.WarnContext(ctx, "failed to publish proposal change",
				"proposal_id", p.ID,
				"error", err,
			)
		}
	}
	if s.auditor != nil {
		event := audit.Event{
			Action:     action,
			Timestamp:  now,
			ProposalID: p.ID,
			LearnerID:  p.LearnerID,
			TenantID:   p.TenantID,
			Subject:    p.Subject,
			FromLevel:  p.FromLevel,
			ToLevel:    p.ToLevel,
			Direction:  string(p.Direction),
			ActorID:    actor,
			Notes:      notes,
			RequestID:  requestcontext.RequestID(ctx),
		}
		if err := s.auditor.Emit(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "failed to emit audit event",
				"action", action,
				"proposal_id", p.ID,
				"error", err,
			)
		}
	}
}

func wrapStoreErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "store temporarily unavailable")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	return err
}
