package models

import (
	"strings"
	"time"

	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
)

// Question is authored upstream and immutable once created.
type Question struct {
	ID              string     `json:"id"`
	Subject         id.Subject `json:"subject"`
	Difficulty      int        `json:"difficulty"`
	CanonicalAnswer *string    `json:"canonical_answer,omitempty"`
	Rubric          *string    `json:"rubric,omitempty"`
}

// Response is one answered question. Append-only; never mutated after scoring.
// Difficulty is copied from the question at answer time so scoring needs no join.
type Response struct {
	QuestionID string       `json:"question_id"`
	LearnerID  id.LearnerID `json:"learner_id"`
	Subject    id.Subject   `json:"subject"`
	Difficulty int          `json:"difficulty"`
	Answer     string       `json:"answer"`
	Correct    bool         `json:"correct"`
	AnsweredAt time.Time    `json:"answered_at"`
}

// SubjectLevel is part of a learner's profile. AssessedGradeLevel changes only
// through an applied proposal.
type SubjectLevel struct {
	LearnerID          id.LearnerID `json:"learner_id"`
	TenantID           id.TenantID  `json:"tenant_id"`
	Subject            id.Subject   `json:"subject"`
	EnrolledGrade      int          `json:"enrolled_grade"`
	AssessedGradeLevel int          `json:"assessed_grade_level"`
	MasteryScore       float64      `json:"mastery_score"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// DateRange bounds a response query. Zero From or To leaves that side open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range, inclusive on both ends.
func (r *DateRange) Contains(t time.Time) bool {
	if r == nil {
		return true
	}
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Scope is the relationship a supervising viewer has to a learner.
type Scope string

const (
	ScopeParent  Scope = "parent"
	ScopeTeacher Scope = "teacher"
)

func ParseScope(s string) (Scope, error) {
	switch scope := Scope(strings.ToLower(strings.TrimSpace(s))); scope {
	case ScopeParent, ScopeTeacher:
		return scope, nil
	case "":
		return "", dErrors.New(dErrors.CodeValidation, "scope is required")
	default:
		return "", dErrors.New(dErrors.CodeValidation, "scope must be parent or teacher")
	}
}

// RosterEntry grants a viewer visibility of a learner.
type RosterEntry struct {
	ViewerID  id.ViewerID  `json:"viewer_id"`
	Scope     Scope        `json:"scope"`
	LearnerID id.LearnerID `json:"learner_id"`
	TenantID  id.TenantID  `json:"tenant_id"`
}
