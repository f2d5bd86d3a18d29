package domain

import (
	"fmt"

	dErrors "gradegate/pkg/domain-errors"
)

// Grade levels are integers on the 1..12 scale.
const (
	MinGrade = 1
	MaxGrade = 12
)

// ClampGrade bounds g to [MinGrade, MaxGrade].
func ClampGrade(g int) int {
	if g < MinGrade {
		return MinGrade
	}
	if g > MaxGrade {
		return MaxGrade
	}
	return g
}

// ValidateGrade returns a validation error naming field when g is off-scale.
func ValidateGrade(field string, g int) error {
	if g < MinGrade || g > MaxGrade {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("%s must be between %d and %d", field, MinGrade, MaxGrade))
	}
	return nil
}
