package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"gradegate/internal/placement"
	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
)

// Status is the lifecycle state of a proposal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

const (
	maxRationaleLen = 4000
	maxNotesLen     = 2000
	maxActorLen     = 255
)

// Proposal is a human-approvable request to change a learner's assessed grade
// level for one subject.
//
// Invariants:
//   - at most one PENDING proposal per (LearnerID, Subject), enforced by the store
//   - PENDING → APPROVED | REJECTED only; terminal states are immutable
//   - FromLevel and ToLevel are on the 1..12 scale
//   - decision metadata is set exactly when Status is terminal
type Proposal struct {
	ID            id.ProposalID       `json:"id"`
	LearnerID     id.LearnerID        `json:"learner_id"`
	TenantID      id.TenantID         `json:"tenant_id"`
	Subject       id.Subject          `json:"subject"`
	FromLevel     int                 `json:"from_level"`
	ToLevel       int                 `json:"to_level"`
	Direction     placement.Direction `json:"direction"`
	Tier          placement.Tier      `json:"tier,omitempty"`
	Rationale     string              `json:"rationale"`
	Status        Status              `json:"status"`
	CreatedBy     string              `json:"created_by"`
	CreatedAt     time.Time           `json:"created_at"`
	DecidedBy     *string             `json:"decided_by,omitempty"`
	DecidedAt     *time.Time          `json:"decided_at,omitempty"`
	DecisionNotes *string             `json:"decision_notes,omitempty"`
}

// NewProposal validates input and returns a PENDING proposal.
func NewProposal(proposalID id.ProposalID, req CreateRequest, now time.Time) (*Proposal, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tier := req.Tier
	if tier == "" {
		tier = tierFor(req.Direction)
	}
	return &Proposal{
		ID:        proposalID,
		LearnerID: req.LearnerID,
		TenantID:  req.TenantID,
		Subject:   req.Subject,
		FromLevel: req.FromLevel,
		ToLevel:   req.ToLevel,
		Direction: req.Direction,
		Tier:      tier,
		Rationale: strings.TrimSpace(req.Rationale),
		Status:    StatusPending,
		CreatedBy: strings.TrimSpace(req.CreatedBy),
		CreatedAt: now,
	}, nil
}

func tierFor(d placement.Direction) placement.Tier {
	switch d {
	case placement.DirectionEasier:
		return placement.TierRemedial
	case placement.DirectionHarder:
		return placement.TierAdvanced
	default:
		return placement.TierOnLevel
	}
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	c := *p
	if p.DecidedBy != nil {
		v := *p.DecidedBy
		c.DecidedBy = &v
	}
	if p.DecidedAt != nil {
		v := *p.DecidedAt
		c.DecidedAt = &v
	}
	if p.DecisionNotes != nil {
		v := *p.DecisionNotes
		c.DecisionNotes = &v
	}
	return &c
}

// ApplyDecision moves the proposal to its terminal state and records who
// decided. Stores call it only on a PENDING proposal.
func (p *Proposal) ApplyDecision(d Decision, now time.Time) {
	if d.Approve {
		p.Status = StatusApproved
	} else {
		p.Status = StatusRejected
	}
	decidedBy := d.DecidedBy
	p.DecidedBy = &decidedBy
	decidedAt := now
	p.DecidedAt = &decidedAt
	if d.Notes != "" {
		notes := d.Notes
		p.DecisionNotes = &notes
	}
}

// CreateRequest carries the fields a caller supplies to open a proposal.
type CreateRequest struct {
	LearnerID id.LearnerID
	TenantID  id.TenantID
	Subject   id.Subject
	FromLevel int
	ToLevel   int
	Direction placement.Direction
	Tier      placement.Tier
	Rationale string
	CreatedBy string
}

// Validate enforces field-level rules before anything reaches the store.
func (r CreateRequest) Validate() error {
	if r.LearnerID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "learner_id is required")
	}
	if r.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "tenant_id is required")
	}
	if !r.Subject.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown subject: "+string(r.Subject))
	}
	if err := id.ValidateGrade("from_level", r.FromLevel); err != nil {
		return err
	}
	if err := id.ValidateGrade("to_level", r.ToLevel); err != nil {
		return err
	}
	if _, err := placement.ParseDirection(string(r.Direction)); err != nil {
		return err
	}
	if r.Direction != placement.DirectionMaintain && r.FromLevel == r.ToLevel {
		return dErrors.New(dErrors.CodeValidation, "to_level must differ from from_level unless direction is maintain")
	}
	if strings.TrimSpace(r.Rationale) == "" {
		return dErrors.New(dErrors.CodeValidation, "rationale is required")
	}
	if len(r.Rationale) > maxRationaleLen {
		return dErrors.New(dErrors.CodeValidation, "rationale is too long")
	}
	createdBy := strings.TrimSpace(r.CreatedBy)
	if createdBy == "" {
		return dErrors.New(dErrors.CodeValidation, "created_by is required")
	}
	if len(createdBy) > maxActorLen {
		return dErrors.New(dErrors.CodeValidation, "created_by is too long")
	}
	return nil
}

// Decision is a human verdict on a pending proposal.
type Decision struct {
	Approve   bool
	DecidedBy string
	Notes     string
}

func (d Decision) Validate() error {
	if strings.TrimSpace(d.DecidedBy) == "" {
		return dErrors.New(dErrors.CodeValidation, "decided_by is required")
	}
	if len(d.DecidedBy) > maxActorLen {
		return dErrors.New(dErrors.CodeValidation, "decided_by is too long")
	}
	if len(d.Notes) > maxNotesLen {
		return dErrors.New(dErrors.CodeValidation, "notes are too long")
	}
	return nil
}

// ChangeKind labels a state change for fan-out and audit.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "proposal_created"
	ChangeApproved ChangeKind = "proposal_approved"
	ChangeRejected ChangeKind = "proposal_rejected"
	// ChangeRostered means ViewerID can now see LearnerID. ProposalID is nil.
	ChangeRostered ChangeKind = "learner_rostered"
)

// Change is published after a committed transition. Consumers re-read state;
// the change only says who to nudge.
type Change struct {
	Kind       ChangeKind
	ProposalID id.ProposalID
	LearnerID  id.LearnerID
	TenantID   id.TenantID
	ViewerID   id.ViewerID
	Subject    id.Subject
	At         time.Time
}

// changeWire is the bus encoding of Change. Nil IDs are omitted because the
// ID types refuse to decode the nil UUID.
type changeWire struct {
	Kind       ChangeKind `json:"kind"`
	ProposalID string     `json:"proposal_id,omitempty"`
	LearnerID  string     `json:"learner_id,omitempty"`
	TenantID   string     `json:"tenant_id,omitempty"`
	ViewerID   string     `json:"viewer_id,omitempty"`
	Subject    id.Subject `json:"subject,omitempty"`
	At         time.Time  `json:"at"`
}

func (c Change) MarshalJSON() ([]byte, error) {
	w := changeWire{Kind: c.Kind, Subject: c.Subject, At: c.At}
	if !c.ProposalID.IsNil() {
		w.ProposalID = c.ProposalID.String()
	}
	if !c.LearnerID.IsNil() {
		w.LearnerID = c.LearnerID.String()
	}
	if !c.TenantID.IsNil() {
		w.TenantID = c.TenantID.String()
	}
	if !c.ViewerID.IsNil() {
		w.ViewerID = c.ViewerID.String()
	}
	return json.Marshal(w)
}

func (c *Change) UnmarshalJSON(b []byte) error {
	var w changeWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	var ids [4]uuid.UUID
	for i, raw := range []string{w.ProposalID, w.LearnerID, w.TenantID, w.ViewerID} {
		if raw == "" {
			continue
		}
		u, err := uuid.Parse(raw)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "change carries an invalid id: "+raw)
		}
		ids[i] = u
	}
	*c = Change{
		Kind:       w.Kind,
		ProposalID: id.ProposalID(ids[0]),
		LearnerID:  id.LearnerID(ids[1]),
		TenantID:   id.TenantID(ids[2]),
		ViewerID:   id.ViewerID(ids[3]),
		Subject:    w.Subject,
		At:         w.At,
	}
	return nil
}

// ChangeFor derives the change event for p's current state.
func ChangeFor(p *Proposal, at time.Time) Change {
	kind := ChangeCreated
	switch p.Status {
	case StatusApproved:
		kind = ChangeApproved
	case StatusRejected:
		kind = ChangeRejected
	}
	return Change{
		Kind:       kind,
		ProposalID: p.ID,
		LearnerID:  p.LearnerID,
		TenantID:   p.TenantID,
		Subject:    p.Subject,
		At:         at,
	}
}
