// Package service scores learners, records their responses and manages the
// enrollment and roster data the proposal lifecycle reads.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gradegate/internal/learner/models"
	"gradegate/internal/placement"
	proposal "gradegate/internal/proposal/models"
	"gradegate/internal/scoring"
	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/platform/sentinel"
	"gradegate/pkg/requestcontext"
)

// maxResponsesPerBatch bounds one RecordResponses call.
const maxResponsesPerBatch = 500

// Store is the persistence the learner service needs.
type Store interface {
	AppendResponses(ctx context.Context, responses []models.Response) error
	FindResponses(ctx context.Context, learnerID id.LearnerID, subject id.Subject, window *models.DateRange) ([]models.Response, error)
	GetSubjectLevel(ctx context.Context, learnerID id.LearnerID, subject id.Subject) (*models.SubjectLevel, error)
	UpsertSubjectLevel(ctx context.Context, level models.SubjectLevel) error
	AddToRoster(ctx context.Context, entry models.RosterEntry) error
}

// ChangePublisher tells live dashboards that a viewer's roster grew.
type ChangePublisher interface {
	Publish(ctx context.Context, change proposal.Change) error
}

// Service is stateless apart from its store.
type Service struct {
	store   Store
	changes ChangePublisher
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithChangePublisher(p ChangePublisher) Option {
	return func(s *Service) {
		s.changes = p
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScoreDomain validates and scores an ad hoc batch of responses. Nothing is
// persisted.
func (s *Service) ScoreDomain(_ context.Context, subject id.Subject, responses []models.Response) (scoring.DomainSummary, error) {
	if err := scoring.ValidateResponses(subject, responses); err != nil {
		return scoring.DomainSummary{}, err
	}
	return scoring.Score(subject, responses), nil
}

// Recommend validates the level grades and runs the placement engine.
func (s *Service) Recommend(_ context.Context, subject id.Subject, level models.SubjectLevel) (placement.Recommendation, error) {
	if !subject.IsValid() {
		return placement.Recommendation{}, dErrors.New(dErrors.CodeValidation, "unknown subject: "+string(subject))
	}
	if err := id.ValidateGrade("enrolled_grade", level.EnrolledGrade); err != nil {
		return placement.Recommendation{}, err
	}
	if err := id.ValidateGrade("assessed_grade_level", level.AssessedGradeLevel); err != nil {
		return placement.Recommendation{}, err
	}
	return placement.Recommend(subject, level), nil
}

// Profile scores every subject from stored responses and aggregates them.
func (s *Service) Profile(ctx context.Context, learnerID id.LearnerID, window *models.DateRange) (scoring.ProfileSummary, error) {
	if learnerID.IsNil() {
		return scoring.ProfileSummary{}, dErrors.New(dErrors.CodeValidation, "learner_id is required")
	}
	summaries := make(map[id.Subject]scoring.DomainSummary, len(id.Subjects))
	for _, subject := range id.Subjects {
		responses, err := s.store.FindResponses(ctx, learnerID, subject, window)
		if err != nil {
			return scoring.ProfileSummary{}, storeErr(err, "failed to load responses")
		}
		summaries[subject] = scoring.Score(subject, responses)
	}
	return scoring.Aggregate(summaries), nil
}

// RecordResponses stamps learnerID onto each response, validates the batch
// per subject and appends it in one call.
func (s *Service) RecordResponses(ctx context.Context, learnerID id.LearnerID, responses []models.Response) error {
	if learnerID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "learner_id is required")
	}
	if len(responses) == 0 {
		return dErrors.New(dErrors.CodeValidation, "responses must not be empty")
	}
	if len(responses) > maxResponsesPerBatch {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("at most %d responses per request", maxResponsesPerBatch))
	}

	now := requestcontext.Now(ctx)
	batch := make([]models.Response, len(responses))
	for i, r := range responses {
		if !r.Subject.IsValid() {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("responses[%d].subject is not a known subject", i))
		}
		if r.QuestionID == "" {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("responses[%d].question_id is required", i))
		}
		r.LearnerID = learnerID
		if r.AnsweredAt.IsZero() {
			r.AnsweredAt = now
		}
		if err := scoring.ValidateResponses(r.Subject, []models.Response{r}); err != nil {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("responses[%d]: %s", i, dErrors.MessageOf(err)))
		}
		batch[i] = r
	}

	if err := s.store.AppendResponses(ctx, batch); err != nil {
		return storeErr(err, "failed to record responses")
	}
	s.logger.InfoContext(ctx, "responses recorded",
		"learner_id", learnerID,
		"count", len(batch),
	)
	return nil
}

// Enroll sets the enrolled grade for a subject. A new enrollment starts with
// the assessed level given (or the enrolled grade when zero); an existing one
// keeps its assessed level, which only an approved proposal may move.
func (s *Service) Enroll(ctx context.Context, level models.SubjectLevel) (*models.SubjectLevel, error) {
	if level.LearnerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "learner_id is required")
	}
	if !level.Subject.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown subject: "+string(level.Subject))
	}
	if err := id.ValidateGrade("enrolled_grade", level.EnrolledGrade); err != nil {
		return nil, err
	}
	if level.AssessedGradeLevel == 0 {
		level.AssessedGradeLevel = level.EnrolledGrade
	}
	if err := id.ValidateGrade("assessed_grade_level", level.AssessedGradeLevel); err != nil {
		return nil, err
	}

	existing, err := s.store.GetSubjectLevel(ctx, level.LearnerID, level.Subject)
	switch {
	case err == nil:
		level.AssessedGradeLevel = existing.AssessedGradeLevel
		level.MasteryScore = existing.MasteryScore
		if level.TenantID.IsNil() {
			level.TenantID = existing.TenantID
		}
	case errors.Is(err, sentinel.ErrNotFound):
	default:
		return nil, storeErr(err, "failed to load subject level")
	}
	level.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.UpsertSubjectLevel(ctx, level); err != nil {
		return nil, storeErr(err, "failed to save subject level")
	}
	s.logger.InfoContext(ctx, "subject level saved",
		"learner_id", level.LearnerID,
		"subject", level.Subject,
		"enrolled_grade", level.EnrolledGrade,
		"assessed_grade_level", level.AssessedGradeLevel,
	)
	return &level, nil
}

// AddToRoster grants a viewer visibility of a learner.
func (s *Service) AddToRoster(ctx context.Context, entry models.RosterEntry) error {
	if entry.ViewerID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "viewer_id is required")
	}
	if entry.LearnerID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "learner_id is required")
	}
	if _, err := models.ParseScope(string(entry.Scope)); err != nil {
		return err
	}
	if err := s.store.AddToRoster(ctx, entry); err != nil {
		return storeErr(err, "failed to update roster")
	}
	if s.changes != nil {
		change := proposal.Change{
			Kind:      proposal.ChangeRostered,
			LearnerID: entry.LearnerID,
			TenantID:  entry.TenantID,
			ViewerID:  entry.ViewerID,
			At:        requestcontext.Now(ctx),
		}
		if err := s.changes.Publish(ctx, change); err != nil {
			s.logger.WarnContext(ctx, "failed to publish roster change",
				"viewer_id", entry.ViewerID,
				"learner_id", entry.LearnerID,
				"error", err,
			)
		}
	}
	return nil
}

func storeErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "store timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
