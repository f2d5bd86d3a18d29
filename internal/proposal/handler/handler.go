// Package handler exposes the proposal lifecycle over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	learner "gradegate/internal/learner/models"
	"gradegate/internal/proposal/models"
	"gradegate/internal/proposal/service"
	id "gradegate/pkg/domain"
	"gradegate/pkg/platform/httputil"
	"gradegate/pkg/requestcontext"
)

// systemActor attributes proposals opened without a viewer or explicit author.
const systemActor = "system"

// Service defines the proposal operations the handler needs.
type Service interface {
	Create(ctx context.Context, req models.CreateRequest) (*models.Proposal, error)
	Decide(ctx context.Context, proposalID id.ProposalID, d models.Decision) (*models.Proposal, error)
	Get(ctx context.Context, proposalID id.ProposalID) (*models.Proposal, error)
	ListPending(ctx context.Context, learnerID id.LearnerID) ([]*models.Proposal, error)
	Propose(ctx context.Context, learnerID id.LearnerID, subject id.Subject, createdBy string, window *learner.DateRange) (*service.ProposeResult, error)
}

// Handler wires proposal endpoints to the proposal service.
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

// Register mounts proposal endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/proposals", h.HandleCreate)
	r.Get("/proposals/{proposalID}", h.HandleGet)
	r.Post("/proposals/{proposalID}/decision", h.HandleDecide)
	r.Post("/learners/{learnerID}/subjects/{subject}/proposals", h.HandlePropose)
	r.Get("/learners/{learnerID}/proposals/pending", h.HandleListPending)
}

// HandleCreate handles POST /proposals.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateProposalRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	create := req.parsed
	if create.CreatedBy == "" {
		create.CreatedBy = actor(ctx)
	}
	if create.TenantID.IsNil() {
		create.TenantID = requestcontext.TenantID(ctx)
	}

	p, err := h.service.Create(ctx, create)
	if err != nil {
		h.logger.WarnContext(ctx, "proposal create rejected",
			"request_id", requestID,
			"learner_id", create.LearnerID,
			"subject", create.Subject,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromProposal(p))
}

// HandleGet handles GET /proposals/{proposalID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proposalID, err := id.ParseProposalID(chi.URLParam(r, "proposalID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.Get(ctx, proposalID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProposal(p))
}

// HandleDecide handles POST /proposals/{proposalID}/decision.
func (h *Handler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	proposalID, err := id.ParseProposalID(chi.URLParam(r, "proposalID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[DecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	decision := models.Decision{
		Approve:   *req.Approve,
		DecidedBy: req.DecidedBy,
		Notes:     req.Notes,
	}
	if decision.DecidedBy == "" {
		if viewer := requestcontext.ViewerID(ctx); !viewer.IsNil() {
			decision.DecidedBy = viewer.String()
		}
	}

	p, err := h.service.Decide(ctx, proposalID, decision)
	if err != nil {
		h.logger.WarnContext(ctx, "proposal decision failed",
			"request_id", requestID,
			"proposal_id", proposalID,
			"approve", decision.Approve,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "proposal decided",
		"request_id", requestID,
		"proposal_id", proposalID,
		"status", p.Status,
		"decided_by", decision.DecidedBy,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromProposal(p))
}

// HandlePropose handles POST /learners/{learnerID}/subjects/{subject}/proposals.
// The body is optional. 201 is returned when a proposal was opened, 200 when
// the evidence did not call for one.
func (h *Handler) HandlePropose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

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

	req := &ProposeRequest{}
	if r.ContentLength != 0 {
		decoded, ok := httputil.DecodeAndPrepare[ProposeRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		req = decoded
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = actor(ctx)
	}

	res, err := h.service.Propose(ctx, learnerID, subject, createdBy, req.Window())
	if err != nil {
		h.logger.WarnContext(ctx, "propose failed",
			"request_id", requestID,
			"learner_id", learnerID,
			"subject", subject,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if res.Proposal != nil {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, FromProposeResult(res))
}

// HandleListPending handles GET /learners/{learnerID}/proposals/pending.
func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	learnerID, err := id.ParseLearnerID(chi.URLParam(r, "learnerID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ps, err := h.service.ListPending(ctx, learnerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProposals(ps))
}

func actor(ctx context.Context) string {
	if viewer := requestcontext.ViewerID(ctx); !viewer.IsNil() {
		return viewer.String()
	}
	return systemActor
}
