package service

import (
	"context"

	"parkspot/internal/auth/models"
)

const (
	msgSignupCreated      = "User created successfully"
	msgSignupConfirmEmail = "Please check your email and click the confirmation link to complete your registration."
)

type SignupResult struct {
	Message string
	models.RegistrationResult
}

func (s *Service) Signup(ctx context.Context, req *models.RegistrationRequest) (result *SignupResult, err error) {
	ctx, span := s.startSpan(ctx, "auth.Signup")
	defer func() {
		endSpan(span, err)
		s.metrics.IncSignup(outcome(err, "created"))
	}()

	registered, err := s.registrar.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	msg := msgSignupCreated
	if registered.RequiresConfirmation {
		msg = msgSignupConfirmEmail
	}
	return &SignupResult{Message: msg, RegistrationResult: *registered}, nil
}
