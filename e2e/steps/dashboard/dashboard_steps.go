package dashboard

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
	GetProposalID() string
}

// RegisterSteps registers dashboard snapshot steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &dashboardSteps{tc: tc}

	ctx.Step(`^I open my dashboard snapshot$`, steps.openSnapshot)
	ctx.Step(`^the dashboard should show (\d+) learners? and (\d+) pending$`, steps.showsCounts)
	ctx.Step(`^the dashboard should list the proposal as pending$`, steps.listsProposal)
}

type dashboardSteps struct {
	tc TestContext
}

func (s *dashboardSteps) openSnapshot(ctx context.Context) error {
	if err := s.tc.Do(http.MethodGet, "/dashboard/snapshot", nil, false); err != nil {
		return err
	}
	if got := s.tc.GetLastResponseStatus(); got != http.StatusOK {
		return fmt.Errorf("snapshot returned %d: %s", got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *dashboardSteps) showsCounts(ctx context.Context, learners, pending int) error {
	for field, want := range map[string]int{
		"metrics.learner_count": learners,
		"metrics.pending_count": pending,
	} {
		v, err := s.tc.GetResponseField(field)
		if err != nil {
			return err
		}
		if n, ok := v.(float64); !ok || int(n) != want {
			return fmt.Errorf("%s: expected %d, got %v", field, want, v)
		}
	}
	return nil
}

func (s *dashboardSteps) listsProposal(ctx context.Context) error {
	v, err := s.tc.GetResponseField("pending")
	if err != nil {
		return err
	}
	list, _ := v.([]any)
	for _, item := range list {
		if p, ok := item.(map[string]any); ok && p["id"] == s.tc.GetProposalID() {
			return nil
		}
	}
	return fmt.Errorf("proposal %s not in dashboard pending list", s.tc.GetProposalID())
}
