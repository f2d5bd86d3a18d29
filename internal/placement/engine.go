// Package placement classifies the gap between enrolled and assessed grade and
// emits an advisory difficulty recommendation. It never mutates a SubjectLevel;
// a recommendation only takes effect once wrapped into an approved proposal.
package placement

import (
	"fmt"

	"gradegate/internal/learner/models"
	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
)

// Tier is the placement band derived from the grade gap.
type Tier string

const (
	TierRemedial Tier = "REMEDIAL"
	TierOnLevel  Tier = "ON_LEVEL"
	TierAdvanced Tier = "ADVANCED"
)

// Direction is the recommended change to content difficulty.
type Direction string

const (
	DirectionEasier   Direction = "easier"
	DirectionHarder   Direction = "harder"
	DirectionMaintain Direction = "maintain"
)

// The thresholds are asymmetric: two grades behind before easing off, one grade
// ahead before escalating.
const (
	remedialGap = 2
	advancedGap = -1
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case DirectionEasier, DirectionHarder, DirectionMaintain:
		return d, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "direction must be easier, harder or maintain")
	}
}

// Recommendation is advisory output of the engine.
type Recommendation struct {
	Subject   id.Subject `json:"subject"`
	Tier      Tier       `json:"tier"`
	Direction Direction  `json:"direction"`
	Rationale string     `json:"rationale"`
	Diff      int        `json:"diff"`
}

// Classify maps diff = enrolled - assessed onto a tier.
func Classify(diff int) Tier {
	switch {
	case diff >= remedialGap:
		return TierRemedial
	case diff <= advancedGap:
		return TierAdvanced
	default:
		return TierOnLevel
	}
}

func (t Tier) Direction() Direction {
	switch t {
	case TierRemedial:
		return DirectionEasier
	case TierAdvanced:
		return DirectionHarder
	default:
		return DirectionMaintain
	}
}

// Recommend classifies the subject level and renders the tier's rationale.
func Recommend(subject id.Subject, level models.SubjectLevel) Recommendation {
	diff := level.EnrolledGrade - level.AssessedGradeLevel
	tier := Classify(diff)
	return Recommendation{
		Subject:   subject,
		Tier:      tier,
		Direction: tier.Direction(),
		Rationale: rationale(tier, subject, level),
		Diff:      diff,
	}
}

func rationale(tier Tier, subject id.Subject, level models.SubjectLevel) string {
	name := subject.DisplayName()
	switch tier {
	case TierRemedial:
		return fmt.Sprintf("%s is currently assessed at grade %d against an enrolled grade of %d. "+
			"Grade %d topics will be scaffolded at the grade %d difficulty and ramped up gradually as mastery returns.",
			name, level.AssessedGradeLevel, level.EnrolledGrade, level.EnrolledGrade, level.AssessedGradeLevel)
	case TierAdvanced:
		return fmt.Sprintf("%s is currently assessed at grade %d, above the enrolled grade of %d. "+
			"Raising difficulty requires explicit consent from a guardian or teacher before it takes effect.",
			name, level.AssessedGradeLevel, level.EnrolledGrade)
	default:
		return fmt.Sprintf("%s is on level (assessed grade %d, enrolled grade %d). "+
			"Current difficulty is kept and progress will continue to be monitored.",
			name, level.AssessedGradeLevel, level.EnrolledGrade)
	}
}
