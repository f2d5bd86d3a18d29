package handler

import (
	"time"

	learner "gradegate/internal/learner/models"
	"gradegate/internal/placement"
	"gradegate/internal/proposal/models"
	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
)

// CreateProposalRequest is the body of POST /proposals.
type CreateProposalRequest struct {
	LearnerID string `json:"learner_id"`
	TenantID  string `json:"tenant_id"`
	Subject   string `json:"subject"`
	FromLevel int    `json:"from_level"`
	ToLevel   int    `json:"to_level"`
	Direction string `json:"direction"`
	Rationale string `json:"rationale"`
	CreatedBy string `json:"created_by"`

	parsed models.CreateRequest
}

// Validate parses identifiers and enums. Range checks happen in the model.
func (r *CreateProposalRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	learnerID, err := id.ParseLearnerID(r.LearnerID)
	if err != nil {
		return err
	}
	var tenantID id.TenantID
	if r.TenantID != "" {
		if tenantID, err = id.ParseTenantID(r.TenantID); err != nil {
			return err
		}
	}
	subject, err := id.ParseSubject(r.Subject)
	if err != nil {
		return err
	}
	direction, err := placement.ParseDirection(r.Direction)
	if err != nil {
		return err
	}
	r.parsed = models.CreateRequest{
		LearnerID: learnerID,
		TenantID:  tenantID,
		Subject:   subject,
		FromLevel: r.FromLevel,
		ToLevel:   r.ToLevel,
		Direction: direction,
		Rationale: r.Rationale,
		CreatedBy: r.CreatedBy,
	}
	return nil
}

// DecisionRequest is the body of POST /proposals/{proposalID}/decision.
type DecisionRequest struct {
	Approve   *bool  `json:"approve"`
	DecidedBy string `json:"decided_by"`
	Notes     string `json:"notes"`
}

func (r *DecisionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Approve == nil {
		return dErrors.New(dErrors.CodeValidation, "approve is required")
	}
	return nil
}

// ProposeRequest is the optional body of the propose pipeline endpoint.
type ProposeRequest struct {
	CreatedBy string     `json:"created_by"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
}

func (r *ProposeRequest) Validate() error {
	if r == nil {
		return nil
	}
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return dErrors.New(dErrors.CodeValidation, "to must not be before from")
	}
	return nil
}

// Window converts the optional bounds into a response filter.
func (r *ProposeRequest) Window() *learner.DateRange {
	if r == nil || (r.From == nil && r.To == nil) {
		return nil
	}
	window := &learner.DateRange{}
	if r.From != nil {
		window.From = *r.From
	}
	if r.To != nil {
		window.To = *r.To
	}
	return window
}
