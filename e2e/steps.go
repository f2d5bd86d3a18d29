package e2e

import (
	"github.com/cucumber/godog"

	"gradegate/e2e/steps/common"
	"gradegate/e2e/steps/dashboard"
	"gradegate/e2e/steps/proposal"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	proposal.RegisterSteps(ctx, tc)
	dashboard.RegisterSteps(ctx, tc)
}
