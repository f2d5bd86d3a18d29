// Package handler exposes scoring, placement and learner records over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gradegate/internal/learner/models"
	"gradegate/internal/placement"
	"gradegate/internal/scoring"
	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/platform/httputil"
	"gradegate/pkg/requestcontext"
)

// Service defines the learner operations the handler needs.
type Service interface {
	ScoreDomain(ctx context.Context, subject id.Subject, responses []models.Response) (scoring.DomainSummary, error)
	Recommend(ctx context.Context, subject id.Subject, level models.SubjectLevel) (placement.Recommendation, error)
	Profile(ctx context.Context, learnerID id.LearnerID, window *models.DateRange) (scoring.ProfileSummary, error)
	RecordResponses(ctx context.Context, learnerID id.LearnerID, responses []models.Response) error
	Enroll(ctx context.Context, level models.SubjectLevel) (*models.SubjectLevel, error)
	AddToRoster(ctx context.Context, entry models.RosterEntry) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts learner endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/scoring/domain", h.HandleScoreDomain)
	r.Post("/placement/recommend", h.HandleRecommend)
	r.Get("/learners/{learnerID}/profile", h.HandleProfile)
	r.Post("/learners/{learnerID}/responses", h.HandleRecordResponses)
}

// RegisterAdmin mounts the enrollment endpoints. The caller wraps r with
// whatever guard administrative writes need.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Put("/learners/{learnerID}/levels/{subject}", h.HandleEnroll)
	r.Post("/viewers/{viewerID}/roster", h.HandleAddToRoster)
}

// HandleScoreDomain handles POST /scoring/domain.
func (h *Handler) HandleScoreDomain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ScoreDomainRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	summary, err := h.service.ScoreDomain(ctx, req.subject, req.responses)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

// HandleRecommend handles POST /placement/recommend.
func (h *Handler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RecommendRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	rec, err := h.service.Recommend(ctx, req.subject, models.SubjectLevel{
		Subject:            req.subject,
		EnrolledGrade:      req.EnrolledGrade,
		AssessedGradeLevel: req.AssessedGradeLevel,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// HandleProfile handles GET /learners/{learnerID}/profile. Optional from/to
// query parameters (RFC 3339) bound the responses considered.
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	learnerID, err := id.ParseLearnerID(chi.URLParam(r, "learnerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	window, err := parseWindow(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	profile, err := h.service.Profile(ctx, learnerID, window)
	if err != nil {
		h.logger.ErrorContext(ctx, "profile failed",
			"request_id", requestcontext.RequestID(ctx),
			"learner_id", learnerID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

// HandleRecordResponses handles POST /learners/{learnerID}/responses.
func (h *Handler) HandleRecordResponses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	learnerID, err := id.ParseLearnerID(chi.URLParam(r, "learnerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RecordResponsesRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.RecordResponses(ctx, learnerID, req.responses); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]int{"recorded": len(req.responses)})
}

// HandleEnroll handles PUT /learners/{learnerID}/levels/{subject}.
func (h *Handler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	learnerID, err := id.ParseLearnerID(chi.URLParam(r, "learnerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	subject, err := id.ParseSubject(chi.URLParam(r, "subject"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[EnrollRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	tenantID := req.tenantID
	if tenantID.IsNil() {
		tenantID = requestcontext.TenantID(ctx)
	}
	level, err := h.service.Enroll(ctx, models.SubjectLevel{
		LearnerID:          learnerID,
		TenantID:           tenantID,
		Subject:            subject,
		EnrolledGrade:      req.EnrolledGrade,
		AssessedGradeLevel: req.AssessedGradeLevel,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, level)
}

// HandleAddToRoster handles POST /viewers/{viewerID}/roster.
func (h *Handler) HandleAddToRoster(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewerID, err := id.ParseViewerID(chi.URLParam(r, "viewerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RosterRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	tenantID := req.tenantID
	if tenantID.IsNil() {
		tenantID = requestcontext.TenantID(ctx)
	}
	entry := models.RosterEntry{ViewerID: viewerID, Scope: req.scope, LearnerID: req.learnerID, TenantID: tenantID}
	if err := h.service.AddToRoster(ctx, entry); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func parseWindow(r *http.Request) (*models.DateRange, error) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" && to == "" {
		return nil, nil
	}
	window := &models.DateRange{}
	var err error
	if from != "" {
		if window.From, err = time.Parse(time.RFC3339, from); err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, "from must be an RFC 3339 timestamp")
		}
	}
	if to != "" {
		if window.To, err = time.Parse(time.RFC3339, to); err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, "to must be an RFC 3339 timestamp")
		}
	}
	if !window.From.IsZero() && !window.To.IsZero() && window.To.Before(window.From) {
		return nil, dErrors.New(dErrors.CodeValidation, "to must not be before from")
	}
	return window, nil
}
