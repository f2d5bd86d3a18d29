package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradegate/internal/learner/models"
	id "gradegate/pkg/domain"
)

func level(enrolled, assessed int) models.SubjectLevel {
	return models.SubjectLevel{Subject: id.SubjectMath, EnrolledGrade: enrolled, AssessedGradeLevel: assessed}
}

func TestRecommend_Exhaustive(t *testing.T) {
	for enrolled := id.MinGrade; enrolled <= id.MaxGrade; enrolled++ {
		for assessed := id.MinGrade; assessed <= id.MaxGrade; assessed++ {
			rec := Recommend(id.SubjectMath, level(enrolled, assessed))
			diff := enrolled - assessed
			switch {
			case diff >= 2:
				require.Equal(t, DirectionEasier, rec.Direction, "enrolled=%d assessed=%d", enrolled, assessed)
				require.Equal(t, TierRemedial, rec.Tier)
			case diff <= -1:
				require.Equal(t, DirectionHarder, rec.Direction, "enrolled=%d assessed=%d", enrolled, assessed)
				require.Equal(t, TierAdvanced, rec.Tier)
			default:
				require.Equal(t, DirectionMaintain, rec.Direction, "enrolled=%d assessed=%d", enrolled, assessed)
				require.Equal(t, TierOnLevel, rec.Tier)
			}
			require.Equal(t, diff, rec.Diff)
		}
	}
}

func TestRecommend_Scenarios(t *testing.T) {
	t.Run("two grades behind goes easier", func(t *testing.T) {
		rec := Recommend(id.SubjectReading, level(7, 5))
		assert.Equal(t, DirectionEasier, rec.Direction)
		assert.Contains(t, rec.Rationale, "Reading")
		assert.Contains(t, rec.Rationale, "scaffolded")
	})

	t.Run("two grades ahead goes harder and asks for consent", func(t *testing.T) {
		rec := Recommend(id.SubjectScience, level(7, 9))
		assert.Equal(t, DirectionHarder, rec.Direction)
		assert.Equal(t, -2, rec.Diff)
		assert.Contains(t, rec.Rationale, "consent")
	})

	t.Run("one grade behind is maintained", func(t *testing.T) {
		rec := Recommend(id.SubjectSEL, level(7, 6))
		assert.Equal(t, DirectionMaintain, rec.Direction)
		assert.Contains(t, rec.Rationale, "monitored")
	})

	t.Run("one grade ahead already escalates", func(t *testing.T) {
		assert.Equal(t, DirectionHarder, Recommend(id.SubjectMath, level(7, 8)).Direction)
	})
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("harder")
	require.NoError(t, err)
	assert.Equal(t, DirectionHarder, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}
