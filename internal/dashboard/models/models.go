// Package models holds the supervisor dashboard's ephemeral read models and
// the events pushed to subscribed viewers.
package models

import (
	"time"

	learner "gradegate/internal/learner/models"
	proposal "gradegate/internal/proposal/models"
	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
)

// EventType names a pushed event.
type EventType string

const (
	EventParentUpdate    EventType = "parent-update"
	EventTeacherUpdate   EventType = "teacher-update"
	EventApprovalsUpdate EventType = "approvals-update"
)

// UpdateEventFor returns the full re-aggregation event type for scope.
func UpdateEventFor(scope learner.Scope) EventType {
	if scope == learner.ScopeParent {
		return EventParentUpdate
	}
	return EventTeacherUpdate
}

// Event is one frame on a subscription. ID increases per subscription.
type Event struct {
	Type    EventType `json:"type"`
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Viewer is a supervising teacher or guardian session.
type Viewer struct {
	ID       id.ViewerID   `json:"viewer_id"`
	Scope    learner.Scope `json:"scope"`
	TenantID id.TenantID   `json:"tenant_id"`
}

func (v Viewer) Validate() error {
	if v.ID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "viewer identity is required")
	}
	if _, err := learner.ParseScope(string(v.Scope)); err != nil {
		return err
	}
	return nil
}

// Metrics aggregates the pending queue a viewer can see.
type Metrics struct {
	LearnerCount    int        `json:"learner_count"`
	PendingCount    int        `json:"pending_count"`
	EasierCount     int        `json:"easier_count"`
	HarderCount     int        `json:"harder_count"`
	MaintainCount   int        `json:"maintain_count"`
	OldestPendingAt *time.Time `json:"oldest_pending_at,omitempty"`
}

// Snapshot is recomputed on every push and never stored.
type Snapshot struct {
	ViewerID    id.ViewerID          `json:"viewer_id"`
	Scope       learner.Scope        `json:"scope"`
	GeneratedAt time.Time            `json:"generated_at"`
	Learners    []id.LearnerID       `json:"learners"`
	Pending     []*proposal.Proposal `json:"pending"`
	Metrics     Metrics              `json:"metrics"`
}

// Approvals is the approvals-update payload: the viewer's pending queue alone.
type Approvals struct {
	ViewerID    id.ViewerID          `json:"viewer_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Pending     []*proposal.Proposal `json:"pending"`
}

// ApprovalsOf projects the pending queue out of a snapshot.
func ApprovalsOf(s *Snapshot) Approvals {
	return Approvals{ViewerID: s.ViewerID, GeneratedAt: s.GeneratedAt, Pending: s.Pending}
}
