package e2e

import (
	"github.com/cucumber/godog"

	"parkspot/e2e/steps/auth"
	"parkspot/e2e/steps/common"
	"parkspot/e2e/steps/ratelimit"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	auth.RegisterSteps(ctx, tc)
	ratelimit.RegisterSteps(ctx, tc)
}
