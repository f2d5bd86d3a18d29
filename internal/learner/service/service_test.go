package service_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"gradegate/internal/learner/models"
	"gradegate/internal/learner/service"
	"gradegate/internal/placement"
	proposal "gradegate/internal/proposal/models"
	"gradegate/internal/storage"
	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/requestcontext"
)

type LearnerServiceSuite struct {
	suite.Suite
	ctx       context.Context
	store     *storage.Memory
	svc       *service.Service
	learnerID id.LearnerID
	tenantID  id.TenantID
	now       time.Time
}

func TestLearnerServiceSuite(t *testing.T) {
	suite.Run(t, new(LearnerServiceSuite))
}

func (s *LearnerServiceSuite) SetupTest() {
	s.now = time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = storage.NewMemory()
	s.svc = service.New(s.store, service.WithLogger(slog.New(slog.DiscardHandler)))
	s.learnerID = id.LearnerID(uuid.New())
	s.tenantID = id.TenantID(uuid.New())
}

func (s *LearnerServiceSuite) responses(subject id.Subject, difficulty, n, correct int) []models.Response {
	out := make([]models.Response, n)
	for i := range out {
		out[i] = models.Response{
			QuestionID: uuid.NewString(),
			Subject:    subject,
			Difficulty: difficulty,
			Correct:    i < correct,
		}
	}
	return out
}

func (s *LearnerServiceSuite) TestScoreDomain() {
	s.Run("scores a validated batch", func() {
		batch := s.responses(id.SubjectMath, 5, 10, 7)
		for i := range batch {
			batch[i].LearnerID = s.learnerID
		}
		summary, err := s.svc.ScoreDomain(s.ctx, id.SubjectMath, batch)
		s.Require().NoError(err)
		s.Equal(8, summary.AssessedGrade)
		s.InDelta(0.7, summary.MasteryRatio, 1e-9)
	})

	s.Run("missing learner is a validation error", func() {
		_, err := s.svc.ScoreDomain(s.ctx, id.SubjectMath, s.responses(id.SubjectMath, 5, 1, 1))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("empty batch scores as grade 1", func() {
		summary, err := s.svc.ScoreDomain(s.ctx, id.SubjectReading, nil)
		s.Require().NoError(err)
		s.Equal(1, summary.AssessedGrade)
		s.Equal("No responses yet", summary.Narrative)
	})
}

func (s *LearnerServiceSuite) TestRecommend() {
	rec, err := s.svc.Recommend(s.ctx, id.SubjectReading, models.SubjectLevel{EnrolledGrade: 5, AssessedGradeLevel: 3})
	s.Require().NoError(err)
	s.Equal(placement.TierRemedial, rec.Tier)
	s.Equal(placement.DirectionEasier, rec.Direction)

	_, err = s.svc.Recommend(s.ctx, id.SubjectReading, models.SubjectLevel{EnrolledGrade: 13, AssessedGradeLevel: 3})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *LearnerServiceSuite) TestRecordResponsesAndProfile() {
	batch := append(s.responses(id.SubjectMath, 6, 10, 10), s.responses(id.SubjectReading, 3, 4, 0)...)
	s.Require().NoError(s.svc.RecordResponses(s.ctx, s.learnerID, batch))

	stored, err := s.store.FindResponses(s.ctx, s.learnerID, id.SubjectMath, nil)
	s.Require().NoError(err)
	s.Len(stored, 10)
	s.Equal(s.learnerID, stored[0].LearnerID)
	s.True(stored[0].AnsweredAt.Equal(s.now), "missing answered_at is stamped with request time")

	profile, err := s.svc.Profile(s.ctx, s.learnerID, nil)
	s.Require().NoError(err)
	s.Len(profile.Domains, len(id.Subjects))
	s.Equal([]id.Subject{id.SubjectMath, id.SubjectReading}, profile.Strengths)

	s.Run("window excludes older responses", func() {
		profile, err := s.svc.Profile(s.ctx, s.learnerID, &models.DateRange{From: s.now.Add(time.Hour)})
		s.Require().NoError(err)
		for _, d := range profile.Domains {
			s.Zero(d.QuestionCount)
		}
	})
}

func (s *LearnerServiceSuite) TestRecordResponsesRejectsBadBatch() {
	cases := map[string][]models.Response{
		"empty":              nil,
		"unknown subject":    {{QuestionID: "q1", Subject: "art", Difficulty: 3}},
		"missing question":   {{Subject: id.SubjectMath, Difficulty: 3}},
		"difficulty too low": {{QuestionID: "q1", Subject: id.SubjectMath, Difficulty: 0}},
	}
	for name, batch := range cases {
		s.Run(name, func() {
			err := s.svc.RecordResponses(s.ctx, s.learnerID, batch)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}

	stored, err := s.store.FindResponses(s.ctx, s.learnerID, id.SubjectMath, nil)
	s.Require().NoError(err)
	s.Empty(stored)
}

func (s *LearnerServiceSuite) TestEnrollKeepsAssessedLevel() {
	level, err := s.svc.Enroll(s.ctx, models.SubjectLevel{
		LearnerID: s.learnerID, TenantID: s.tenantID, Subject: id.SubjectMath, EnrolledGrade: 5,
	})
	s.Require().NoError(err)
	s.Equal(5, level.AssessedGradeLevel)

	// Simulate an applied proposal moving the assessed level.
	level.AssessedGradeLevel = 7
	s.Require().NoError(s.store.UpsertSubjectLevel(s.ctx, *level))

	level, err = s.svc.Enroll(s.ctx, models.SubjectLevel{
		LearnerID: s.learnerID, Subject: id.SubjectMath, EnrolledGrade: 6, AssessedGradeLevel: 2,
	})
	s.Require().NoError(err)
	s.Equal(6, level.EnrolledGrade)
	s.Equal(7, level.AssessedGradeLevel)
	s.Equal(s.tenantID, level.TenantID)

	_, err = s.svc.Enroll(s.ctx, models.SubjectLevel{LearnerID: s.learnerID, Subject: id.SubjectMath, EnrolledGrade: 0})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestAddToRoster(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	svc := service.New(store)
	viewerID := id.ViewerID(uuid.New())
	learnerID := id.LearnerID(uuid.New())

	entry := models.RosterEntry{ViewerID: viewerID, Scope: models.ScopeTeacher, LearnerID: learnerID}
	require.NoError(t, svc.AddToRoster(ctx, entry))
	require.NoError(t, svc.AddToRoster(ctx, entry))

	visible, err := store.VisibleLearners(ctx, viewerID, models.ScopeTeacher)
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	err = svc.AddToRoster(ctx, models.RosterEntry{ViewerID: viewerID, Scope: "janitor", LearnerID: learnerID})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

type recordingPublisher struct {
	changes []proposal.Change
	err     error
}

func (r *recordingPublisher) Publish(_ context.Context, change proposal.Change) error {
	r.changes = append(r.changes, change)
	return r.err
}

func TestAddToRosterPublishesChange(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	entry := models.RosterEntry{
		ViewerID:  id.ViewerID(uuid.New()),
		Scope:     models.ScopeParent,
		LearnerID: id.LearnerID(uuid.New()),
		TenantID:  id.TenantID(uuid.New()),
	}

	t.Run("published after the roster is saved", func(t *testing.T) {
		pub := &recordingPublisher{}
		svc := service.New(storage.NewMemory(), service.WithChangePublisher(pub))
		require.NoError(t, svc.AddToRoster(ctx, entry))
		require.Len(t, pub.changes, 1)
		assert.Equal(t, proposal.Change{
			Kind:      proposal.ChangeRostered,
			LearnerID: entry.LearnerID,
			TenantID:  entry.TenantID,
			ViewerID:  entry.ViewerID,
			At:        now,
		}, pub.changes[0])
	})

	t.Run("publish failure does not fail the call", func(t *testing.T) {
		pub := &recordingPublisher{err: errors.New("bus down")}
		svc := service.New(storage.NewMemory(), service.WithChangePublisher(pub), service.WithLogger(slog.New(slog.DiscardHandler)))
		require.NoError(t, svc.AddToRoster(ctx, entry))
		assert.Len(t, pub.changes, 1)
	})

	t.Run("invalid entries publish nothing", func(t *testing.T) {
		pub := &recordingPublisher{}
		svc := service.New(storage.NewMemory(), service.WithChangePublisher(pub))
		require.Error(t, svc.AddToRoster(ctx, models.RosterEntry{ViewerID: entry.ViewerID, Scope: models.ScopeParent}))
		assert.Empty(t, pub.changes)
	})
}
