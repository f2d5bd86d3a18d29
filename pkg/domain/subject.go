package domain

import (
	"strings"

	dErrors "gradegate/pkg/domain-errors"
)

// Subject identifies an instructional domain.
// Invariant: the value must be one of Subjects.
//
// Construct via ParseSubject at trust boundaries; direct casting bypasses validation.
type Subject string

const (
	SubjectReading Subject = "reading"
	SubjectMath    Subject = "math"
	SubjectSpeech  Subject = "speech"
	SubjectSEL     Subject = "sel"
	SubjectScience Subject = "science"
)

// Subjects is the fixed aggregation order. Ties in cross-subject rankings are
// broken by position in this slice.
var Subjects = []Subject{
	SubjectReading,
	SubjectMath,
	SubjectSpeech,
	SubjectSEL,
	SubjectScience,
}

var subjectNames = map[Subject]string{
	SubjectReading: "Reading",
	SubjectMath:    "Math",
	SubjectSpeech:  "Speech",
	SubjectSEL:     "Social-Emotional Learning",
	SubjectScience: "Science",
}

// ParseSubject normalises case and whitespace and rejects unknown subjects.
func ParseSubject(s string) (Subject, error) {
	subject := Subject(strings.ToLower(strings.TrimSpace(s)))
	if subject == "" {
		return "", dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	if !subject.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown subject: "+s)
	}
	return subject, nil
}

func (s Subject) IsValid() bool {
	_, ok := subjectNames[s]
	return ok
}

// DisplayName is the human-facing label used in rationale text.
func (s Subject) DisplayName() string {
	if name, ok := subjectNames[s]; ok {
		return name
	}
	return string(s)
}

func (s Subject) String() string {
	return string(s)
}
