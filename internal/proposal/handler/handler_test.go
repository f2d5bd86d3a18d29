package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	learner "gradegate/internal/learner/models"
	"gradegate/internal/placement"
	"gradegate/internal/proposal/handler/mocks"
	"gradegate/internal/proposal/models"
	"gradegate/internal/proposal/service"
	"gradegate/internal/scoring"
	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router

	learnerID  id.LearnerID
	tenantID   id.TenantID
	viewerID   id.ViewerID
	proposalID id.ProposalID
	now        time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	New(s.service, logger).Register(s.router)

	s.learnerID = id.LearnerID(uuid.New())
	s.tenantID = id.TenantID(uuid.New())
	s.viewerID = id.ViewerID(uuid.New())
	s.proposalID = id.NewProposalID()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *HandlerSuite) pending() *models.Proposal {
	return &models.Proposal{
		ID:        s.proposalID,
		LearnerID: s.learnerID,
		TenantID:  s.tenantID,
		Subject:   id.SubjectMath,
		FromLevel: 5,
		ToLevel:   7,
		Direction: placement.DirectionHarder,
		Tier:      placement.TierAdvanced,
		Rationale: "consistently above grade",
		Status:    models.StatusPending,
		CreatedBy: s.viewerID.String(),
		CreatedAt: s.now,
	}
}

func (s *HandlerSuite) createBody() map[string]any {
	return map[string]any{
		"learner_id": s.learnerID.String(),
		"subject":    "math",
		"from_level": 5,
		"to_level":   7,
		"direction":  "harder",
		"rationale":  "  consistently above grade  ",
	}
}

func (s *HandlerSuite) TestCreate() {
	s.Run("defaults author and tenant from the viewer", func() {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, req models.CreateRequest) (*models.Proposal, error) {
				s.Equal(s.viewerID.String(), req.CreatedBy)
				s.Equal(s.tenantID, req.TenantID)
				s.Equal("consistently above grade", req.Rationale)
				s.Equal(placement.DirectionHarder, req.Direction)
				return s.pending(), nil
			})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/proposals", s.createBody())
		req = testutil.WithViewer(req, s.viewerID, "teacher", s.tenantID)
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[ProposalResponse](s.T(), rr)
		s.Equal(s.proposalID.String(), resp.ID)
		s.Equal("PENDING", resp.Status)
	})

	s.Run("malformed learner id is a bad request", func() {
		body := s.createBody()
		body["learner_id"] = "not-a-uuid"
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/proposals", body))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})

	s.Run("unknown direction is rejected before the service", func() {
		body := s.createBody()
		body["direction"] = "sideways"
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/proposals", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("empty body", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/proposals"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	s.Run("second pending proposal conflicts", func() {
		s.service.EXPECT().Create(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "a decision is already pending for this subject"))

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/proposals", s.createBody()))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeConflict))
	})
}

func (s *HandlerSuite) TestCreateConcurrentRequestsYieldOneCreated() {
	var won atomic.Bool
	s.service.EXPECT().Create(gomock.Any(), gomock.Any()).Times(2).
		DoAndReturn(func(_ any, _ models.CreateRequest) (*models.Proposal, error) {
			if won.CompareAndSwap(false, true) {
				return s.pending(), nil
			}
			return nil, dErrors.New(dErrors.CodeConflict, "a decision is already pending for this subject")
		})

	codes := make([]int, 2)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/proposals", s.createBody())
			codes[i] = testutil.DoRequest(s.router, req).Code
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(s.T(), []int{http.StatusCreated, http.StatusConflict}, codes)
}

func (s *HandlerSuite) TestDecide() {
	path := "/proposals/" + s.proposalID.String() + "/decision"

	s.Run("approve defaults decided_by to the viewer", func() {
		approved := s.pending()
		approved.Status = models.StatusApproved
		by := s.viewerID.String()
		approved.DecidedBy = &by

		s.service.EXPECT().Decide(gomock.Any(), s.proposalID, models.Decision{Approve: true, DecidedBy: by, Notes: "ok"}).
			Return(approved, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"approve": true, "notes": "ok"})
		req = testutil.WithViewer(req, s.viewerID, "parent", s.tenantID)
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		testutil.AssertJSONContains(s.T(), rr, "status", "APPROVED")
		testutil.AssertJSONContains(s.T(), rr, "decided_by", by)
	})

	s.Run("approve flag is required", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"decided_by": "teacher-1"}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	cases := map[string]struct {
		err    error
		status int
		code   dErrors.Code
	}{
		"unknown proposal": {dErrors.New(dErrors.CodeNotFound, "proposal not found"), http.StatusNotFound, dErrors.CodeNotFound},
		"already decided":  {dErrors.New(dErrors.CodeInvalidState, "this request was already decided"), http.StatusConflict, dErrors.CodeInvalidState},
		"not enrolled":     {dErrors.New(dErrors.CodeInvariantViolation, "learner is not enrolled in math"), http.StatusUnprocessableEntity, dErrors.CodeInvariantViolation},
		"store down":       {dErrors.New(dErrors.CodeUnavailable, "store unavailable"), http.StatusServiceUnavailable, dErrors.CodeUnavailable},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			s.service.EXPECT().Decide(gomock.Any(), s.proposalID, gomock.Any()).Return(nil, tc.err)
			req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"approve": false, "decided_by": "teacher-1"})
			rr := testutil.DoRequest(s.router, req)
			testutil.AssertStatusAndError(s.T(), rr, tc.status, string(tc.code))
		})
	}

	s.Run("malformed proposal id", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/proposals/nope/decision", map[string]any{"approve": true})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *HandlerSuite) TestGetAndListPending() {
	s.Run("get", func() {
		s.service.EXPECT().Get(gomock.Any(), s.proposalID).Return(s.pending(), nil)
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/proposals/"+s.proposalID.String()))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		testutil.AssertJSONContains(s.T(), rr, "subject", "math")
	})

	s.Run("list pending is never null", func() {
		s.service.EXPECT().ListPending(gomock.Any(), s.learnerID).Return(nil, nil)
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/learners/"+s.learnerID.String()+"/proposals/pending"))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		s.JSONEq(`{"proposals":[]}`, rr.Body.String())
	})
}

func (s *HandlerSuite) TestPropose() {
	path := "/learners/" + s.learnerID.String() + "/subjects/math/proposals"
	summary := scoring.DomainSummary{Subject: id.SubjectMath, AssessedGrade: 7, QuestionCount: 10}
	rec := placement.Recommendation{Subject: id.SubjectMath, Tier: placement.TierAdvanced, Direction: placement.DirectionHarder, Diff: -2}

	s.Run("created when a change is warranted", func() {
		s.service.EXPECT().Propose(gomock.Any(), s.learnerID, id.SubjectMath, systemActor, (*learner.DateRange)(nil)).
			Return(&service.ProposeResult{Summary: summary, Recommendation: rec, Proposal: s.pending()}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, path))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[ProposeResponse](s.T(), rr)
		require.NotNil(s.T(), resp.Proposal)
		s.Equal(7, resp.Proposal.ToLevel)
	})

	s.Run("ok without a proposal and with a window", func() {
		from := s.now.Add(-24 * time.Hour)
		s.service.EXPECT().Propose(gomock.Any(), s.learnerID, id.SubjectMath, "teacher-1", gomock.Any()).
			DoAndReturn(func(_ any, _ id.LearnerID, _ id.Subject, _ string, window *learner.DateRange) (*service.ProposeResult, error) {
				s.Require().NotNil(window)
				s.True(window.From.Equal(from))
				s.True(window.To.IsZero())
				return &service.ProposeResult{Summary: summary, Recommendation: rec}, nil
			})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"created_by": "teacher-1", "from": from})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[ProposeResponse](s.T(), rr)
		s.Nil(resp.Proposal)
	})

	s.Run("unknown subject", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/learners/"+s.learnerID.String()+"/subjects/art/proposals"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("inverted window", func() {
		body := map[string]any{"from": s.now, "to": s.now.Add(-time.Hour)}
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, path, body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}
