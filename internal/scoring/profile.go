package scoring

import (
	"math"
	"sort"

	id "gradegate/pkg/domain"
)

// rankedSubjects is how many subjects are reported as strengths and as challenges.
const rankedSubjects = 2

// ProfileSummary rolls per-subject summaries into one learner-level view.
type ProfileSummary struct {
	OverallGrade int             `json:"overall_grade"`
	Domains      []DomainSummary `json:"domains"`
	Strengths    []id.Subject    `json:"strengths"`
	Challenges   []id.Subject    `json:"challenges"`
}

// Aggregate walks id.Subjects in order. Subjects with no summary count as
// empty (grade 1). Ranking ties go to the first-listed subject.
func Aggregate(summaries map[id.Subject]DomainSummary) ProfileSummary {
	domains := make([]DomainSummary, 0, len(id.Subjects))
	sum := 0
	for _, subject := range id.Subjects {
		s, ok := summaries[subject]
		if !ok {
			s = Score(subject, nil)
		}
		domains = append(domains, s)
		sum += s.AssessedGrade
	}

	overall := int(math.Round(float64(sum) / float64(len(domains))))

	byGradeDesc := append([]DomainSummary(nil), domains...)
	sort.SliceStable(byGradeDesc, func(i, j int) bool {
		return byGradeDesc[i].AssessedGrade > byGradeDesc[j].AssessedGrade
	})
	byGradeAsc := append([]DomainSummary(nil), domains...)
	sort.SliceStable(byGradeAsc, func(i, j int) bool {
		return byGradeAsc[i].AssessedGrade < byGradeAsc[j].AssessedGrade
	})

	return ProfileSummary{
		OverallGrade: overall,
		Domains:      domains,
		Strengths:    subjectsOf(byGradeDesc[:rankedSubjects]),
		Challenges:   subjectsOf(byGradeAsc[:rankedSubjects]),
	}
}

func subjectsOf(ds []DomainSummary) []id.Subject {
	out := make([]id.Subject, len(ds))
	for i, d := range ds {
		out[i] = d.Subject
	}
	return out
}
