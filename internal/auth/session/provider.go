package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"parkspot/internal/auth/models"
	"parkspot/internal/auth/provider"
)

// Normalize maps a provider session onto the gateway's session shape.
func Normalize(ps *provider.Session) *models.Session {
	if ps == nil {
		return nil
	}
	tok := ps.Token()
	s := &models.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if ps.User != nil {
		s.Claims = models.Claims{UserID: ps.User.ID, Email: ps.User.Email, ExpiresAt: tok.Expiry}
	}
	return s
}

type UserResolver interface {
	GetUser(ctx context.Context, accessToken string) (*provider.User, error)
}

// Exchanger turns tokens delivered in the OAuth redirect fragment into a
// server-side session. It only reads from the provider, so repeating an
// exchange with the same tokens yields the same identity.
type Exchanger struct {
	provider UserResolver
	logger   *slog.Logger
	now      func() time.Time
}

func NewExchanger(p UserResolver, logger *slog.Logger) *Exchanger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exchanger{provider: p, logger: logger, now: time.Now}
}

// Exchange fails closed: any problem returns ErrInvalidSession and no session.
func (e *Exchanger) Exchange(ctx context.Context, accessToken, refreshToken string) (*models.Session, error) {
	if accessToken == "" {
		return nil, ErrInvalidSession
	}
	user, err := e.provider.GetUser(ctx, accessToken)
	if err != nil {
		e.logger.WarnContext(ctx, "session exchange rejected", "error", err)
		return nil, ErrInvalidSession
	}
	if user == nil || user.ID == "" {
		return nil, ErrInvalidSession
	}

	expiresAt := e.tokenExpiry(accessToken)
	if !expiresAt.IsZero() && !expiresAt.After(e.now()) {
		return nil, ErrInvalidSession
	}

	return &models.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Claims: models.Claims{
			UserID:    user.ID,
			Email:     user.Email,
			ExpiresAt: expiresAt,
		},
	}, nil
}

// tokenExpiry reads exp from the provider's access token. The provider has
// already vouched for the token, so the signature is not re-checked here.
func (e *Exchanger) tokenExpiry(accessToken string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
