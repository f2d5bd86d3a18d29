package domain

import (
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "gradegate/pkg/domain-errors"
)

// Typed identifiers keep learners, tenants, proposals and viewers from being
// passed where another is expected. All are UUID-backed.
type (
	LearnerID  uuid.UUID
	TenantID   uuid.UUID
	ProposalID uuid.UUID
	ViewerID   uuid.UUID
)

func (id LearnerID) String() string  { return uuid.UUID(id).String() }
func (id TenantID) String() string   { return uuid.UUID(id).String() }
func (id ProposalID) String() string { return uuid.UUID(id).String() }
func (id ViewerID) String() string   { return uuid.UUID(id).String() }

func (id LearnerID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id TenantID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ProposalID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ViewerID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

func (id LearnerID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id TenantID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id ProposalID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ViewerID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }

func (id *LearnerID) UnmarshalText(b []byte) error {
	parsed, err := ParseLearnerID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *TenantID) UnmarshalText(b []byte) error {
	parsed, err := ParseTenantID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ProposalID) UnmarshalText(b []byte) error {
	parsed, err := ParseProposalID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ViewerID) UnmarshalText(b []byte) error {
	parsed, err := ParseViewerID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewProposalID generates a random proposal identifier.
func NewProposalID() ProposalID {
	return ProposalID(uuid.New())
}

func ParseLearnerID(s string) (LearnerID, error) {
	u, err := parseUUID(s, "learner_id")
	return LearnerID(u), err
}

func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant_id")
	return TenantID(u), err
}

func ParseProposalID(s string) (ProposalID, error) {
	u, err := parseUUID(s, "proposal_id")
	return ProposalID(u), err
}

func ParseViewerID(s string) (ViewerID, error) {
	u, err := parseUUID(s, "viewer_id")
	return ViewerID(u), err
}

// parseUUID enforces: non-empty, valid UTF-8, canonical UUID, not the nil UUID.
func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	if !utf8.ValidString(s) {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" must be valid UTF-8")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" must not be the nil UUID")
	}
	return u, nil
}
