package service

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"parkspot/internal/auth/credential"
	"parkspot/internal/auth/models"
	"parkspot/internal/auth/provider"
	"parkspot/internal/platform/config"
	dErrors "parkspot/pkg/domain-errors"
	"parkspot/pkg/requestcontext"
)

type OAuthResult struct {
	URL     string
	Cookies []*http.Cookie
}

// OAuthURL returns the provider redirect for oauthProvider and the state
// cookie to set alongside it.
func (s *Service) OAuthURL(ctx context.Context, oauthProvider string) (result *OAuthResult, err error) {
	ctx, span := s.startSpan(ctx, "auth.OAuthURL")
	defer func() { endSpan(span, err) }()

	if s.cfg.Mode != config.AuthModeProvider {
		return nil, dErrors.New(dErrors.CodeBadRequest, "OAuth sign-in is not enabled")
	}
	oauthProvider = strings.ToLower(oauthProvider)
	if _, ok := s.oauthProviders[oauthProvider]; !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "Unsupported OAuth provider")
	}

	state, err := credential.GenerateState()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to start OAuth flow")
	}
	url := s.provider.AuthorizeURL(oauthProvider, provider.RedirectURL(s.cfg.SiteURL), state)

	s.logger.InfoContext(ctx, "oauth flow started",
		"oauth_provider", oauthProvider,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &OAuthResult{URL: url, Cookies: []*http.Cookie{s.cookies.State(state)}}, nil
}

type CallbackResult struct {
	User    models.Claims
	Cookies []*http.Cookie
}

// ExchangeCallback turns the tokens from the OAuth redirect fragment into
// session cookies. Any failure yields unauthenticated and no cookies.
func (s *Service) ExchangeCallback(ctx context.Context, req models.CallbackRequest, presented SessionCookies) (result *CallbackResult, err error) {
	ctx, span := s.startSpan(ctx, "auth.ExchangeCallback")
	defer func() { endSpan(span, err) }()

	unauthenticated := dErrors.New(dErrors.CodeUnauthenticated, "Authentication failed")
	if s.cfg.Mode != config.AuthModeProvider {
		return nil, unauthenticated
	}
	// Either side carrying a state binds the callback to it; only a flow with
	// no state at all skips the check.
	if subtle.ConstantTimeCompare([]byte(req.State), []byte(presented.State)) != 1 {
		s.logger.WarnContext(ctx, "oauth state mismatch", "request_id", requestcontext.RequestID(ctx))
		return nil, unauthenticated
	}

	established, err := s.exchanger.Exchange(ctx, req.AccessToken, req.RefreshToken)
	if err != nil {
		return nil, unauthenticated
	}

	cookies := s.cookies.Provider(established, s.now())
	if presented.State != "" {
		expired := s.cookies.State("")
		expired.MaxAge = -1
		cookies = append(cookies, expired)
	}
	return &CallbackResult{User: established.Claims, Cookies: cookies}, nil
}
