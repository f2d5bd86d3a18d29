package proposal

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(method, path string, body any, admin bool) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetViewerID() string
	GetLearnerID() string
	GetTenantID() string
	GetProposalID() string
	SetProposalID(id string)
}

// RegisterSteps registers enrollment, evidence and proposal lifecycle steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &proposalSteps{tc: tc}

	ctx.Step(`^a learner enrolled in "([^"]*)" at grade (\d+)$`, steps.learnerEnrolled)
	ctx.Step(`^the learner is on my roster$`, steps.learnerOnRoster)
	ctx.Step(`^the learner answered (\d+) "([^"]*)" questions of difficulty (\d+) with (\d+) correct$`, steps.learnerAnswered)
	ctx.Step(`^I request a proposal for "([^"]*)"$`, steps.requestProposal)
	ctx.Step(`^I (approve|reject) the proposal$`, steps.decide)
	ctx.Step(`^I list the learner's pending proposals$`, steps.listPending)
	ctx.Step(`^there should be (\d+) pending proposals?$`, steps.pendingCount)
	ctx.Step(`^the learner's "([^"]*)" level should be (\d+)$`, steps.levelShouldBe)
}

type proposalSteps struct {
	tc TestContext
}

func (s *proposalSteps) expect(status int) error {
	if got := s.tc.GetLastResponseStatus(); got != status {
		return fmt.Errorf("expected %d, got %d: %s", status, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *proposalSteps) learnerEnrolled(ctx context.Context, subject string, grade int) error {
	err := s.tc.Do(http.MethodPut, "/learners/"+s.tc.GetLearnerID()+"/levels/"+subject, map[string]any{
		"tenant_id":            s.tc.GetTenantID(),
		"enrolled_grade":       grade,
		"assessed_grade_level": grade,
	}, true)
	if err != nil {
		return err
	}
	return s.expect(http.StatusOK)
}

func (s *proposalSteps) learnerOnRoster(ctx context.Context) error {
	err := s.tc.Do(http.MethodPost, "/viewers/"+s.tc.GetViewerID()+"/roster", map[string]any{
		"learner_id": s.tc.GetLearnerID(),
		"tenant_id":  s.tc.GetTenantID(),
		"scope":      "teacher",
	}, true)
	if err != nil {
		return err
	}
	return s.expect(http.StatusCreated)
}

func (s *proposalSteps) learnerAnswered(ctx context.Context, count int, subject string, difficulty, correct int) error {
	responses := make([]map[string]any, count)
	for i := range responses {
		responses[i] = map[string]any{
			"question_id": fmt.Sprintf("%s-%d", subject, i),
			"subject":     subject,
			"difficulty":  difficulty,
			"answer":      "a",
			"correct":     i < correct,
		}
	}
	err := s.tc.Do(http.MethodPost, "/learners/"+s.tc.GetLearnerID()+"/responses", map[string]any{
		"responses": responses,
	}, false)
	if err != nil {
		return err
	}
	return s.expect(http.StatusCreated)
}

func (s *proposalSteps) requestProposal(ctx context.Context, subject string) error {
	if err := s.tc.Do(http.MethodPost, "/learners/"+s.tc.GetLearnerID()+"/subjects/"+subject+"/proposals", nil, false); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() == http.StatusCreated {
		v, err := s.tc.GetResponseField("proposal.id")
		if err != nil {
			return err
		}
		s.tc.SetProposalID(fmt.Sprint(v))
	}
	return nil
}

func (s *proposalSteps) decide(ctx context.Context, verb string) error {
	if s.tc.GetProposalID() == "" {
		return fmt.Errorf("no proposal in this scenario")
	}
	return s.tc.Do(http.MethodPost, "/proposals/"+s.tc.GetProposalID()+"/decision", map[string]any{
		"approve": verb == "approve",
		"notes":   "decided in e2e scenario",
	}, false)
}

func (s *proposalSteps) listPending(ctx context.Context) error {
	return s.tc.Do(http.MethodGet, "/learners/"+s.tc.GetLearnerID()+"/proposals/pending", nil, false)
}

func (s *proposalSteps) pendingCount(ctx context.Context, want int) error {
	v, err := s.tc.GetResponseField("proposals")
	if err != nil {
		return err
	}
	list, ok := v.([]any)
	if !ok {
		return fmt.Errorf("proposals is not a list: %v", v)
	}
	if len(list) != want {
		return fmt.Errorf("expected %d pending proposals, got %d", want, len(list))
	}
	return nil
}

// levelShouldBe re-enrolls without an assessed level, which echoes the stored
// one back.
func (s *proposalSteps) levelShouldBe(ctx context.Context, subject string, want int) error {
	if err := s.tc.Do(http.MethodPut, "/learners/"+s.tc.GetLearnerID()+"/levels/"+subject, map[string]any{
		"enrolled_grade": 7,
	}, true); err != nil {
		return err
	}
	if err := s.expect(http.StatusOK); err != nil {
		return err
	}
	v, err := s.tc.GetResponseField("assessed_grade_level")
	if err != nil {
		return err
	}
	if n, ok := v.(float64); !ok || int(n) != want {
		return fmt.Errorf("expected level %d, got %v", want, v)
	}
	return nil
}
