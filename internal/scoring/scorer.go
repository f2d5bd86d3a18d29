// Package scoring turns answered questions into per-subject mastery estimates.
// Everything here is a pure function of its inputs and safe for concurrent use.
package scoring

import (
	"fmt"
	"math"

	"gradegate/internal/learner/models"
	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
)

const (
	// StrengthThreshold separates "strength emerging" from "needs scaffolding".
	StrengthThreshold = 0.6

	// masteryFloor keeps a learner with no correct answers at 80% of baseline.
	masteryFloor = 0.8

	noResponsesNarrative = "No responses yet"
)

// DomainSummary is derived on demand from responses and never persisted as
// source of truth.
type DomainSummary struct {
	Subject       id.Subject `json:"subject"`
	AssessedGrade int        `json:"assessed_grade"`
	MasteryRatio  float64    `json:"mastery_ratio"`
	Narrative     string     `json:"narrative"`
	QuestionCount int        `json:"question_count"`
	TotalWeight   int        `json:"total_weight"`
	CorrectWeight int        `json:"correct_weight"`
}

// Score computes a difficulty-weighted mastery ratio and a grade estimate
// clamped to 1..12. Input must already be validated (see ValidateResponses).
func Score(subject id.Subject, responses []models.Response) DomainSummary {
	if len(responses) == 0 {
		return DomainSummary{
			Subject:       subject,
			AssessedGrade: id.MinGrade,
			Narrative:     noResponsesNarrative,
		}
	}

	var total, correct int
	for _, r := range responses {
		total += r.Difficulty
		if r.Correct {
			correct += r.Difficulty
		}
	}

	var ratio float64
	if total > 0 {
		ratio = float64(correct) / float64(total)
	}

	count := len(responses)
	baseline := max(1, int(math.Round(float64(total)/float64(count))))
	assessed := id.ClampGrade(int(math.Round(float64(baseline) * (masteryFloor + ratio))))

	return DomainSummary{
		Subject:       subject,
		AssessedGrade: assessed,
		MasteryRatio:  ratio,
		Narrative:     narrative(subject, ratio, count),
		QuestionCount: count,
		TotalWeight:   total,
		CorrectWeight: correct,
	}
}

func narrative(subject id.Subject, ratio float64, count int) string {
	pct := int(math.Round(ratio * 100))
	if ratio > StrengthThreshold {
		return fmt.Sprintf("Strength emerging in %s: %d%% of weighted work correct across %d questions.",
			subject.DisplayName(), pct, count)
	}
	return fmt.Sprintf("%s needs scaffolding: %d%% of weighted work correct across %d questions; keep practice at a supported level.",
		subject.DisplayName(), pct, count)
}

// ValidateResponses rejects input the scorer must never see: off-scale
// difficulty, responses from another subject, or a missing learner.
func ValidateResponses(subject id.Subject, responses []models.Response) error {
	if !subject.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown subject: "+string(subject))
	}
	for i, r := range responses {
		if r.Difficulty < id.MinGrade || r.Difficulty > id.MaxGrade {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("responses[%d].difficulty must be between %d and %d", i, id.MinGrade, id.MaxGrade))
		}
		if r.Subject != "" && r.Subject != subject {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("responses[%d].subject %q does not match %q", i, r.Subject, subject))
		}
		if r.LearnerID.IsNil() {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("responses[%d].learner_id is required", i))
		}
	}
	return nil
}
