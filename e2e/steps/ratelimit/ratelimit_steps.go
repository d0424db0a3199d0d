package ratelimit

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	EmailFor(alias string) string
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers login throttling and enumeration step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I attempt login as "([^"]*)" (\d+) times with password "([^"]*)"$`, steps.attemptLoginNTimes)
	ctx.Step(`^at least one attempt should return (\d+)$`, steps.someAttemptReturned)
	ctx.Step(`^I attempt login with unknown user "([^"]*)"$`, steps.attemptUnknownUser)
	ctx.Step(`^I attempt login as "([^"]*)" with a wrong password$`, steps.attemptWrongPassword)
	ctx.Step(`^both failures should be indistinguishable$`, steps.failuresIndistinguishable)
}

type ratelimitSteps struct {
	tc       TestContext
	statuses []int
	failures [][]byte
}

func (s *ratelimitSteps) attemptLoginNTimes(ctx context.Context, alias string, n int, password string) error {
	s.statuses = s.statuses[:0]
	for range n {
		if err := s.tc.POST("/auth/login", map[string]any{
			"email":    s.tc.EmailFor(alias),
			"password": password,
		}); err != nil {
			return err
		}
		s.statuses = append(s.statuses, s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *ratelimitSteps) someAttemptReturned(ctx context.Context, want int) error {
	for _, got := range s.statuses {
		if got == want {
			return nil
		}
	}
	return fmt.Errorf("no attempt returned %d: %v", want, s.statuses)
}

func (s *ratelimitSteps) attemptUnknownUser(ctx context.Context, alias string) error {
	if err := s.tc.POST("/auth/login", map[string]any{
		"email":    s.tc.EmailFor(alias),
		"password": "whatever1",
	}); err != nil {
		return err
	}
	s.failures = append(s.failures, s.tc.GetLastResponseBody())
	return nil
}

func (s *ratelimitSteps) attemptWrongPassword(ctx context.Context, alias string) error {
	if err := s.tc.POST("/auth/login", map[string]any{
		"email":    s.tc.EmailFor(alias),
		"password": "definitely-wrong",
	}); err != nil {
		return err
	}
	s.failures = append(s.failures, s.tc.GetLastResponseBody())
	return nil
}

func (s *ratelimitSteps) failuresIndistinguishable(ctx context.Context) error {
	if len(s.failures) < 2 {
		return fmt.Errorf("expected two failed logins, got %d", len(s.failures))
	}
	a, b := string(s.failures[len(s.failures)-2]), string(s.failures[len(s.failures)-1])
	if a != b {
		return fmt.Errorf("login failures differ:\n%s\n%s", a, b)
	}
	return nil
}
