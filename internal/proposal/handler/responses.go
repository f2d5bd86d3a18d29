package handler

import (
	"time"

	"gradegate/internal/placement"
	"gradegate/internal/proposal/models"
	"gradegate/internal/proposal/service"
	"gradegate/internal/scoring"
)

// ProposalResponse is the wire form of a proposal.
type ProposalResponse struct {
	ID            string     `json:"id"`
	LearnerID     string     `json:"learner_id"`
	TenantID      string     `json:"tenant_id"`
	Subject       string     `json:"subject"`
	FromLevel     int        `json:"from_level"`
	ToLevel       int        `json:"to_level"`
	Direction     string     `json:"direction"`
	Tier          string     `json:"tier"`
	Rationale     string     `json:"rationale"`
	Status        string     `json:"status"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	DecidedBy     *string    `json:"decided_by,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	DecisionNotes *string    `json:"decision_notes,omitempty"`
}

func FromProposal(p *models.Proposal) ProposalResponse {
	return ProposalResponse{
		ID:            p.ID.String(),
		LearnerID:     p.LearnerID.String(),
		TenantID:      p.TenantID.String(),
		Subject:       string(p.Subject),
		FromLevel:     p.FromLevel,
		ToLevel:       p.ToLevel,
		Direction:     string(p.Direction),
		Tier:          string(p.Tier),
		Rationale:     p.Rationale,
		Status:        string(p.Status),
		CreatedBy:     p.CreatedBy,
		CreatedAt:     p.CreatedAt,
		DecidedBy:     p.DecidedBy,
		DecidedAt:     p.DecidedAt,
		DecisionNotes: p.DecisionNotes,
	}
}

// PendingListResponse wraps a learner's pending proposals.
type PendingListResponse struct {
	Proposals []ProposalResponse `json:"proposals"`
}

func FromProposals(ps []*models.Proposal) PendingListResponse {
	out := PendingListResponse{Proposals: make([]ProposalResponse, 0, len(ps))}
	for _, p := range ps {
		out.Proposals = append(out.Proposals, FromProposal(p))
	}
	return out
}

// ProposeResponse reports the pipeline outcome. Proposal is omitted when no
// change was warranted.
type ProposeResponse struct {
	Summary        scoring.DomainSummary    `json:"summary"`
	Recommendation placement.Recommendation `json:"recommendation"`
	Proposal       *ProposalResponse        `json:"proposal,omitempty"`
}

func FromProposeResult(res *service.ProposeResult) ProposeResponse {
	out := ProposeResponse{Summary: res.Summary, Recommendation: res.Recommendation}
	if res.Proposal != nil {
		p := FromProposal(res.Proposal)
		out.Proposal = &p
	}
	return out
}
