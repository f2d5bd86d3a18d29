package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	learner "gradegate/internal/learner/models"
	"gradegate/internal/placement"
	"gradegate/internal/proposal/models"
	id "gradegate/pkg/domain"
	"gradegate/pkg/platform/sentinel"
)

// storeSuite runs the same behavioural checks against every backend.
type storeSuite struct {
	suite.Suite
	newStore func() Store
	store    Store
	ctx      context.Context
	base     time.Time
}

func (s *storeSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
	s.base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *storeSuite) enroll(learnerID id.LearnerID, subject id.Subject, enrolled, assessed int) {
	s.Require().NoError(s.store.UpsertSubjectLevel(s.ctx, learner.SubjectLevel{
		LearnerID:          learnerID,
		TenantID:           id.TenantID(uuid.New()),
		Subject:            subject,
		EnrolledGrade:      enrolled,
		AssessedGradeLevel: assessed,
		UpdatedAt:          s.base,
	}))
}

func (s *storeSuite) newPending(learnerID id.LearnerID, subject id.Subject, createdAt time.Time) *models.Proposal {
	return &models.Proposal{
		ID:        id.NewProposalID(),
		LearnerID: learnerID,
		TenantID:  id.TenantID(uuid.New()),
		Subject:   subject,
		FromLevel: 7,
		ToLevel:   5,
		Direction: placement.DirectionEasier,
		Tier:      placement.TierRemedial,
		Rationale: "scaffold",
		Status:    models.StatusPending,
		CreatedBy: "engine",
		CreatedAt: createdAt,
	}
}

func (s *storeSuite) TestResponses() {
	learnerID := id.LearnerID(uuid.New())
	responses := []learner.Response{
		{QuestionID: "q2", LearnerID: learnerID, Subject: id.SubjectMath, Difficulty: 5, Correct: true, AnsweredAt: s.base.Add(2 * time.Hour)},
		{QuestionID: "q1", LearnerID: learnerID, Subject: id.SubjectMath, Difficulty: 4, Correct: false, AnsweredAt: s.base.Add(time.Hour)},
		{QuestionID: "r1", LearnerID: learnerID, Subject: id.SubjectReading, Difficulty: 3, Correct: true, AnsweredAt: s.base},
	}
	s.Require().NoError(s.store.AppendResponses(s.ctx, responses))

	s.Run("filters by subject and orders by answer time", func() {
		got, err := s.store.FindResponses(s.ctx, learnerID, id.SubjectMath, nil)
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal("q1", got[0].QuestionID)
		s.Equal("q2", got[1].QuestionID)
		s.True(got[1].Correct)
		s.Equal(5, got[1].Difficulty)
	})

	s.Run("applies inclusive date window", func() {
		window := &learner.DateRange{From: s.base.Add(2 * time.Hour)}
		got, err := s.store.FindResponses(s.ctx, learnerID, id.SubjectMath, window)
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal("q2", got[0].QuestionID)
	})

	s.Run("unknown learner has no responses", func() {
		got, err := s.store.FindResponses(s.ctx, id.LearnerID(uuid.New()), id.SubjectMath, nil)
		s.Require().NoError(err)
		s.Empty(got)
	})
}

func (s *storeSuite) TestSubjectLevels() {
	learnerID := id.LearnerID(uuid.New())

	s.Run("missing level is ErrNotFound", func() {
		_, err := s.store.GetSubjectLevel(s.ctx, learnerID, id.SubjectScience)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("upsert inserts then replaces", func() {
		s.enroll(learnerID, id.SubjectScience, 6, 6)
		s.enroll(learnerID, id.SubjectScience, 7, 5)

		level, err := s.store.GetSubjectLevel(s.ctx, learnerID, id.SubjectScience)
		s.Require().NoError(err)
		s.Equal(7, level.EnrolledGrade)
		s.Equal(5, level.AssessedGradeLevel)
	})
}

func (s *storeSuite) TestRoster() {
	viewerID := id.ViewerID(uuid.New())
	learnerID := id.LearnerID(uuid.New())
	tenantID := id.TenantID(uuid.New())
	entry := learner.RosterEntry{ViewerID: viewerID, Scope: learner.ScopeTeacher, LearnerID: learnerID, TenantID: tenantID}

	s.Require().NoError(s.store.AddToRoster(s.ctx, entry))
	s.Require().NoError(s.store.AddToRoster(s.ctx, entry))

	teacher, err := s.store.VisibleLearners(s.ctx, viewerID, learner.ScopeTeacher)
	s.Require().NoError(err)
	s.Require().Len(teacher, 1)
	s.Equal(learnerID, teacher[0].LearnerID)
	s.Equal(tenantID, teacher[0].TenantID)

	parent, err := s.store.VisibleLearners(s.ctx, viewerID, learner.ScopeParent)
	s.Require().NoError(err)
	s.Empty(parent)
}

func (s *storeSuite) TestPendingUniqueness() {
	learnerID := id.LearnerID(uuid.New())
	s.enroll(learnerID, id.SubjectMath, 7, 7)

	first := s.newPending(learnerID, id.SubjectMath, s.base)
	s.Require().NoError(s.store.CreatePending(s.ctx, first))

	s.Run("second pending for the same subject conflicts", func() {
		err := s.store.CreatePending(s.ctx, s.newPending(learnerID, id.SubjectMath, s.base.Add(time.Minute)))
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("other subjects are independent", func() {
		s.NoError(s.store.CreatePending(s.ctx, s.newPending(learnerID, id.SubjectReading, s.base.Add(time.Minute))))
	})

	s.Run("a decided proposal frees the slot", func() {
		_, err := s.store.ApplyDecision(s.ctx, first.ID, models.Decision{Approve: false, DecidedBy: "teacher"}, s.base.Add(time.Hour))
		s.Require().NoError(err)
		s.NoError(s.store.CreatePending(s.ctx, s.newPending(learnerID, id.SubjectMath, s.base.Add(2*time.Hour))))
	})
}

func (s *storeSuite) TestConcurrentCreateAllowsExactlyOne() {
	learnerID := id.LearnerID(uuid.New())
	const goroutines = 50

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.store.CreatePending(s.ctx, s.newPending(learnerID, id.SubjectSpeech, s.base.Add(time.Duration(i)*time.Second)))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())

	pending, err := s.store.ListPending(s.ctx, learnerID)
	s.Require().NoError(err)
	s.Len(pending, 1)
}

func (s *storeSuite) TestListPending() {
	a := id.LearnerID(uuid.New())
	b := id.LearnerID(uuid.New())
	late := s.newPending(a, id.SubjectMath, s.base.Add(time.Hour))
	early := s.newPending(a, id.SubjectReading, s.base)
	other := s.newPending(b, id.SubjectMath, s.base.Add(30*time.Minute))
	for _, p := range []*models.Proposal{late, early, other} {
		s.Require().NoError(s.store.CreatePending(s.ctx, p))
	}

	s.Run("single learner oldest first", func() {
		got, err := s.store.ListPending(s.ctx, a)
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal(early.ID, got[0].ID)
		s.Equal(late.ID, got[1].ID)
	})

	s.Run("several learners merged in creation order", func() {
		got, err := s.store.ListPendingForLearners(s.ctx, []id.LearnerID{a, b})
		s.Require().NoError(err)
		s.Require().Len(got, 3)
		s.Equal([]id.ProposalID{early.ID, other.ID, late.ID}, []id.ProposalID{got[0].ID, got[1].ID, got[2].ID})
	})

	s.Run("no learners yields empty list", func() {
		got, err := s.store.ListPendingForLearners(s.ctx, nil)
		s.Require().NoError(err)
		s.NotNil(got)
		s.Empty(got)
	})

	s.Run("find pending by subject", func() {
		got, err := s.store.FindPending(s.ctx, b, id.SubjectMath)
		s.Require().NoError(err)
		s.Equal(other.ID, got.ID)

		_, err = s.store.FindPending(s.ctx, b, id.SubjectSEL)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *storeSuite) TestApplyDecision() {
	now := s.base.Add(24 * time.Hour)

	s.Run("approve updates status and level together", func() {
		learnerID := id.LearnerID(uuid.New())
		s.enroll(learnerID, id.SubjectMath, 7, 7)
		p := s.newPending(learnerID, id.SubjectMath, s.base)
		s.Require().NoError(s.store.CreatePending(s.ctx, p))

		decided, err := s.store.ApplyDecision(s.ctx, p.ID, models.Decision{Approve: true, DecidedBy: "teacher-1", Notes: "ok"}, now)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, decided.Status)
		s.Require().NotNil(decided.DecidedBy)
		s.Equal("teacher-1", *decided.DecidedBy)
		s.Require().NotNil(decided.DecisionNotes)
		s.Equal("ok", *decided.DecisionNotes)
		s.Require().NotNil(decided.DecidedAt)
		s.True(now.Equal(*decided.DecidedAt))

		level, err := s.store.GetSubjectLevel(s.ctx, learnerID, id.SubjectMath)
		s.Require().NoError(err)
		s.Equal(5, level.AssessedGradeLevel)
		s.Equal(7, level.EnrolledGrade)

		stored, err := s.store.FindByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, stored.Status)
	})

	s.Run("reject leaves the level untouched", func() {
		learnerID := id.LearnerID(uuid.New())
		s.enroll(learnerID, id.SubjectMath, 7, 7)
		p := s.newPending(learnerID, id.SubjectMath, s.base)
		s.Require().NoError(s.store.CreatePending(s.ctx, p))

		decided, err := s.store.ApplyDecision(s.ctx, p.ID, models.Decision{Approve: false, DecidedBy: "parent-1"}, now)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, decided.Status)
		s.Nil(decided.DecisionNotes)

		level, err := s.store.GetSubjectLevel(s.ctx, learnerID, id.SubjectMath)
		s.Require().NoError(err)
		s.Equal(7, level.AssessedGradeLevel)
	})

	s.Run("second decision is ErrInvalidState", func() {
		learnerID := id.LearnerID(uuid.New())
		p := s.newPending(learnerID, id.SubjectMath, s.base)
		s.Require().NoError(s.store.CreatePending(s.ctx, p))
		_, err := s.store.ApplyDecision(s.ctx, p.ID, models.Decision{DecidedBy: "a"}, now)
		s.Require().NoError(err)

		_, err = s.store.ApplyDecision(s.ctx, p.ID, models.Decision{Approve: true, DecidedBy: "b"}, now)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("unknown proposal is ErrNotFound", func() {
		_, err := s.store.ApplyDecision(s.ctx, id.NewProposalID(), models.Decision{DecidedBy: "a"}, now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("approval without a level row writes nothing", func() {
		learnerID := id.LearnerID(uuid.New())
		p := s.newPending(learnerID, id.SubjectSEL, s.base)
		s.Require().NoError(s.store.CreatePending(s.ctx, p))

		_, err := s.store.ApplyDecision(s.ctx, p.ID, models.Decision{Approve: true, DecidedBy: "a"}, now)
		s.ErrorIs(err, ErrNotEnrolled)

		stored, err := s.store.FindByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, stored.Status)
		s.Nil(stored.DecidedBy)
	})
}
