package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	learner "gradegate/internal/learner/models"
	"gradegate/internal/placement"
	"gradegate/internal/proposal/models"
	"gradegate/internal/scoring"
	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/platform/sentinel"
)

// ProposeResult is the outcome of the scoring pipeline for one subject.
// Proposal is nil when the evidence does not call for a change.
type ProposeResult struct {
	Summary        scoring.DomainSummary    `json:"summary"`
	Recommendation placement.Recommendation `json:"recommendation"`
	Proposal       *models.Proposal         `json:"proposal,omitempty"`
}

// Propose scores the learner's responses for subject, compares the scored
// grade against the enrolled grade and, when a change is warranted, opens a
// proposal moving the stored assessed level to the scored grade.
//
// No proposal is created when there are no responses, when the
// recommendation is to maintain, or when the scored grade already equals the
// stored level.
func (s *Service) Propose(ctx context.Context, learnerID id.LearnerID, subject id.Subject, createdBy string, window *learner.DateRange) (*ProposeResult, error) {
	ctx, span := s.tracer.Start(ctx, "proposal.Propose", trace.WithAttributes(
		attribute.String("learner_id", learnerID.String()),
		attribute.String("subject", string(subject)),
	))
	defer span.End()

	if s.learners == nil {
		return nil, endSpan(span, dErrors.New(dErrors.CodeInternal, "propose pipeline is not configured"))
	}
	if learnerID.IsNil() {
		return nil, endSpan(span, dErrors.New(dErrors.CodeValidation, "learner_id is required"))
	}
	if !subject.IsValid() {
		return nil, endSpan(span, dErrors.New(dErrors.CodeValidation, "unknown subject: "+string(subject)))
	}

	responses, err := s.learners.FindResponses(ctx, learnerID, subject, window)
	if err != nil {
		return nil, endSpan(span, wrapStoreErr(err, "failed to load responses"))
	}
	if err := scoring.ValidateResponses(subject, responses); err != nil {
		return nil, endSpan(span, err)
	}
	summary := scoring.Score(subject, responses)

	level, err := s.learners.GetSubjectLevel(ctx, learnerID, subject)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, endSpan(span, dErrors.New(dErrors.CodeNotFound, "learner is not enrolled in "+string(subject)))
		}
		return nil, endSpan(span, wrapStoreErr(err, "failed to load subject level"))
	}

	scored := *level
	scored.AssessedGradeLevel = summary.AssessedGrade
	rec := placement.Recommend(subject, scored)
	result := &ProposeResult{Summary: summary, Recommendation: rec}

	span.SetAttributes(
		attribute.Int("scored_grade", summary.AssessedGrade),
		attribute.String("direction", string(rec.Direction)),
	)
	if summary.QuestionCount == 0 ||
		rec.Direction == placement.DirectionMaintain ||
		summary.AssessedGrade == level.AssessedGradeLevel {
		s.logger.InfoContext(ctx, "no proposal warranted",
			"learner_id", learnerID,
			"subject", subject,
			"scored_grade", summary.AssessedGrade,
			"stored_level", level.AssessedGradeLevel,
			"direction", rec.Direction,
		)
		return result, nil
	}

	p, err := s.Create(ctx, models.CreateRequest{
		LearnerID: learnerID,
		TenantID:  level.TenantID,
		Subject:   subject,
		FromLevel: level.AssessedGradeLevel,
		ToLevel:   summary.AssessedGrade,
		Direction: rec.Direction,
		Tier:      rec.Tier,
		Rationale: rec.Rationale + " " + summary.Narrative,
		CreatedBy: createdBy,
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	result.Proposal = p
	return result, nil
}
