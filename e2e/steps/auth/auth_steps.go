package auth

import (
	"context"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string, headers map[string]string) error
	EmailFor(alias string) string
	Reset()
}

// RegisterSteps registers signup, login and session step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	ctx.Step(`^I sign up as "([^"]*)" with password "([^"]*)"$`, steps.signUp)
	ctx.Step(`^I sign up as "([^"]*)" with password "([^"]*)" and a partial address$`, steps.signUpPartialAddress)
	ctx.Step(`^I sign up with only an email for "([^"]*)"$`, steps.signUpEmailOnly)
	ctx.Step(`^a registered user "([^"]*)" with password "([^"]*)"$`, steps.registeredUser)
	ctx.Step(`^I log in as "([^"]*)" with password "([^"]*)"$`, steps.logIn)
	ctx.Step(`^I check my session$`, steps.checkSession)
	ctx.Step(`^I log out$`, steps.logOut)
	ctx.Step(`^I open a new browser$`, steps.newBrowser)
}

type authSteps struct {
	tc TestContext
}

func (s *authSteps) signupBody(alias, password string) map[string]any {
	return map[string]any{
		"email":     s.tc.EmailFor(alias),
		"password":  password,
		"firstName": "E2E",
		"lastName":  alias,
	}
}

func (s *authSteps) signUp(ctx context.Context, alias, password string) error {
	return s.tc.POST("/auth/signup", s.signupBody(alias, password))
}

func (s *authSteps) signUpPartialAddress(ctx context.Context, alias, password string) error {
	body := s.signupBody(alias, password)
	body["address"] = map[string]string{"street": "1 Main St", "city": "Springfield"}
	return s.tc.POST("/auth/signup", body)
}

func (s *authSteps) signUpEmailOnly(ctx context.Context, alias string) error {
	return s.tc.POST("/auth/signup", map[string]any{"email": s.tc.EmailFor(alias)})
}

func (s *authSteps) registeredUser(ctx context.Context, alias, password string) error {
	return s.signUp(ctx, alias, password)
}

func (s *authSteps) logIn(ctx context.Context, alias, password string) error {
	return s.tc.POST("/auth/login", map[string]any{
		"email":    s.tc.EmailFor(alias),
		"password": password,
	})
}

func (s *authSteps) checkSession(ctx context.Context) error {
	return s.tc.GET("/auth/me", nil)
}

func (s *authSteps) logOut(ctx context.Context) error {
	return s.tc.POST("/auth/logout", nil)
}

func (s *authSteps) newBrowser(ctx context.Context) error {
	s.tc.Reset()
	return nil
}
