// Package audit records proposal lifecycle transitions for later review.
//
// Publishers are best-effort from the caller's point of view: the lifecycle
// manager logs an Emit failure and carries on, so Async buffers events and
// delivers them to a sink (Kafka, Log when no broker is configured, Memory in
// tests) off the request path.
package audit

import (
	"time"

	id "gradegate/pkg/domain"
)

// Action names a lifecycle transition.
type Action string

const (
	ActionProposalCreated  Action = "proposal_created"
	ActionProposalApproved Action = "proposal_approved"
	ActionProposalRejected Action = "proposal_rejected"
)

// Event is one audit record. Fields are flat so sinks can serialize them
// without knowing proposal internals.
type Event struct {
	Action     Action        `json:"action"`
	Timestamp  time.Time     `json:"timestamp"`
	ProposalID id.ProposalID `json:"proposal_id"`
	LearnerID  id.LearnerID  `json:"learner_id"`
	TenantID   id.TenantID   `json:"tenant_id"`
	Subject    id.Subject    `json:"subject"`
	FromLevel  int           `json:"from_level"`
	ToLevel    int           `json:"to_level"`
	Direction  string        `json:"direction"`
	ActorID    string        `json:"actor_id"`
	Notes      string        `json:"notes,omitempty"`
	RequestID  string        `json:"request_id,omitempty"`
}
