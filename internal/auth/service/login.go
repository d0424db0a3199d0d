package service

import (
	"context"
	"net/http"

	"parkspot/internal/auth/device"
	"parkspot/internal/auth/models"
	"parkspot/internal/auth/session"
	"parkspot/internal/platform/config"
	dErrors "parkspot/pkg/domain-errors"
	"parkspot/pkg/requestcontext"
)

type LoginResult struct {
	User    models.Claims
	Cookies []*http.Cookie
}

// Login verifies credentials and establishes a session in the configured mode.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (result *LoginResult, err error) {
	ctx, span := s.startSpan(ctx, "auth.Login")
	defer func() {
		endSpan(span, err)
		s.metrics.IncLogin(outcome(err, "success"))
	}()

	verified, err := s.verifier.Verify(ctx, req.Email, req.Password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidCredentials) {
			s.logger.InfoContext(ctx, "login rejected",
				"client_ip", requestcontext.ClientIP(ctx),
				"device", device.ParseUserAgent(requestcontext.UserAgent(ctx)),
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		return nil, err
	}

	switch s.cfg.Mode {
	case config.AuthModeProvider:
		if verified.ProviderSession == nil {
			return nil, dErrors.New(dErrors.CodeInternal, "provider returned no session")
		}
		normalized := session.Normalize(verified.ProviderSession)
		result = &LoginResult{
			User:    normalized.Claims,
			Cookies: s.cookies.Provider(normalized, s.now()),
		}
	default:
		signed, err := s.issuer.Issue(verified.Identity)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue session")
		}
		result = &LoginResult{
			User:    signed.Claims,
			Cookies: []*http.Cookie{s.cookies.Token(signed)},
		}
	}

	s.logger.InfoContext(ctx, "login succeeded",
		"user_id", result.User.UserID,
		"device", device.ParseUserAgent(requestcontext.UserAgent(ctx)),
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}
