package service

import (
	"context"
	"errors"
	"net/http"

	"parkspot/internal/auth/credential"
	"parkspot/internal/auth/models"
	"parkspot/internal/auth/provider"
	"parkspot/internal/platform/config"
	dErrors "parkspot/pkg/domain-errors"
	"parkspot/pkg/requestcontext"
)

// ErrUnauthenticated is the only error CurrentIdentity returns.
var ErrUnauthenticated = dErrors.New(dErrors.CodeUnauthenticated, "Not authenticated")

// CurrentIdentity resolves the presented cookies to identity claims. The
// reason a session is rejected is never surfaced.
func (s *Service) CurrentIdentity(ctx context.Context, presented SessionCookies) (claims *models.Claims, err error) {
	ctx, span := s.startSpan(ctx, "auth.CurrentIdentity")
	defer func() {
		endSpan(span, err)
		s.metrics.IncSessionLookup(err == nil)
	}()

	switch s.cfg.Mode {
	case config.AuthModeProvider:
		if presented.AccessToken == "" {
			return nil, ErrUnauthenticated
		}
		user, err := s.provider.GetUser(ctx, presented.AccessToken)
		if err != nil {
			if !errors.Is(err, provider.ErrInvalidToken) {
				s.logger.WarnContext(ctx, "session lookup failed", "error", err, "request_id", requestcontext.RequestID(ctx))
			}
			return nil, ErrUnauthenticated
		}
		return &models.Claims{UserID: user.ID, Email: user.Email}, nil
	default:
		if presented.Token == "" {
			return nil, ErrUnauthenticated
		}
		decoded, err := s.issuer.Decode(ctx, presented.Token)
		if err != nil {
			return nil, ErrUnauthenticated
		}
		return decoded, nil
	}
}

type LogoutResult struct {
	Cookies []*http.Cookie
}

// Logout ends the presented session. Local tokens are added to the
// revocation list; provider sessions are signed out with the provider.
func (s *Service) Logout(ctx context.Context, presented SessionCookies) (result *LogoutResult, err error) {
	ctx, span := s.startSpan(ctx, "auth.Logout")
	defer func() { endSpan(span, err) }()

	switch s.cfg.Mode {
	case config.AuthModeProvider:
		if presented.AccessToken != "" {
			if err := s.provider.SignOut(ctx, presented.AccessToken); err != nil && !errors.Is(err, provider.ErrInvalidToken) {
				mapped := credential.MapProviderError(err)
				if dErrors.HasCode(mapped, dErrors.CodeProviderUnavailable) {
					return nil, mapped
				}
				return nil, dErrors.Wrap(err, dErrors.CodeProviderError, "Failed to sign out")
			}
		}
	default:
		if presented.Token != "" {
			// A forged or expired token needs no revocation.
			if claims, verifyErr := s.issuer.Verify(presented.Token); verifyErr == nil {
				if err := s.issuer.Revoke(ctx, claims); err != nil {
					return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Failed to revoke session")
				}
			}
		}
	}

	return &LogoutResult{Cookies: s.cookies.Clear()}, nil
}
