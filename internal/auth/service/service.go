// Package service is the auth façade used by the HTTP handlers. It composes
// the verifier, session issuer, registrar and identity provider for the
// configured mode and returns plain results plus the cookies to set.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"parkspot/internal/auth/credential"
	"parkspot/internal/auth/models"
	"parkspot/internal/auth/provider"
	"parkspot/internal/auth/session"
	"parkspot/internal/platform/config"
	dErrors "parkspot/pkg/domain-errors"
)

type Verifier interface {
	Verify(ctx context.Context, email, password string) (*credential.Verification, error)
}

type Registrar interface {
	Register(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationResult, error)
}

type TokenIssuer interface {
	Issue(identity *models.Identity) (*models.SignedSession, error)
	Decode(ctx context.Context, token string) (*models.Claims, error)
	Verify(token string) (*models.Claims, error)
	Revoke(ctx context.Context, claims *models.Claims) error
}

type IdentityProvider interface {
	GetUser(ctx context.Context, accessToken string) (*provider.User, error)
	SignOut(ctx context.Context, accessToken string) error
	AuthorizeURL(oauthProvider, redirectTo, state string) string
}

type SessionExchanger interface {
	Exchange(ctx context.Context, accessToken, refreshToken string) (*models.Session, error)
}

type Metrics interface {
	IncSignup(outcome string)
	IncLogin(outcome string)
	IncSessionLookup(authenticated bool)
}

// Config is the slice of process configuration the façade needs.
type Config struct {
	Mode           config.AuthMode
	SiteURL        string
	OAuthProviders []string
	SecureCookies  bool
}

// Service holds no per-request state; it is safe for concurrent use.
type Service struct {
	cfg            Config
	oauthProviders map[string]struct{}
	verifier       Verifier
	registrar      Registrar
	issuer         TokenIssuer
	provider       IdentityProvider
	exchanger      SessionExchanger
	cookies        session.Cookies
	metrics        Metrics
	logger         *slog.Logger
	tracer         trace.Tracer
	now            func() time.Time
}

type Option func(*Service)

func WithIssuer(issuer TokenIssuer) Option {
	return func(s *Service) {
		s.issuer = issuer
	}
}

func WithProvider(p IdentityProvider) Option {
	return func(s *Service) {
		s.provider = p
	}
}

func WithExchanger(e SessionExchanger) Option {
	return func(s *Service) {
		s.exchanger = e
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(cfg Config, verifier Verifier, registrar Registrar, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:            cfg,
		oauthProviders: make(map[string]struct{}, len(cfg.OAuthProviders)),
		verifier:       verifier,
		registrar:      registrar,
		cookies:        session.Cookies{Secure: cfg.SecureCookies},
		metrics:        noopMetrics{},
		logger:         slog.Default(),
		tracer:         otel.Tracer("parkspot/internal/auth/service"),
		now:            time.Now,
	}
	for _, p := range cfg.OAuthProviders {
		s.oauthProviders[p] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}

	if verifier == nil || registrar == nil {
		return nil, errors.New("auth service requires a verifier and a registrar")
	}
	switch cfg.Mode {
	case config.AuthModeLocal:
		if s.issuer == nil {
			return nil, errors.New("local auth mode requires a session issuer")
		}
	case config.AuthModeProvider:
		if s.provider == nil || s.exchanger == nil {
			return nil, errors.New("provider auth mode requires an identity provider and exchanger")
		}
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
	return s, nil
}

func (s *Service) Mode() config.AuthMode {
	return s.cfg.Mode
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("auth.mode", string(s.cfg.Mode)),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		code := string(dErrors.CodeInternal)
		if de, ok := dErrors.As(err); ok {
			code = string(de.Code)
		}
		span.SetStatus(codes.Error, code)
	}
	span.End()
}

// outcome is the metrics label for an operation result.
func outcome(err error, success string) string {
	if err == nil {
		return success
	}
	if de, ok := dErrors.As(err); ok {
		return string(de.Code)
	}
	return string(dErrors.CodeInternal)
}

type noopMetrics struct{}

func (noopMetrics) IncSignup(string)      {}
func (noopMetrics) IncLogin(string)       {}
func (noopMetrics) IncSessionLookup(bool) {}

// SessionCookies are the session cookie values the caller presented.
type SessionCookies struct {
	Token        string
	AccessToken  string
	RefreshToken string
	State        string
}
