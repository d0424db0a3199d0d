// Package session issues and decodes locally signed session tokens, and
// normalizes provider-issued sessions into the same claims shape.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"parkspot/internal/auth/models"
	dErrors "parkspot/pkg/domain-errors"
)

const DefaultTTL = time.Hour

// ErrInvalidSession covers every way a token can fail to decode. Callers
// treat it as "not signed in".
var ErrInvalidSession = dErrors.New(dErrors.CodeUnauthenticated, "invalid session")

type tokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// RevocationList holds JTIs of tokens that were logged out before expiry.
type RevocationList interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Issuer signs HS256 tokens with a process-wide secret read once at startup.
type Issuer struct {
	secret      []byte
	issuer      string
	ttl         time.Duration
	revocations RevocationList
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Issuer)

func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

func WithRevocationList(list RevocationList) Option {
	return func(i *Issuer) {
		i.revocations = list
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) {
		i.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

func NewIssuer(secret, issuer string, opts ...Option) *Issuer {
	i := &Issuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    DefaultTTL,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue signs a token for identity. Only the id and email are embedded.
func (i *Issuer) Issue(identity *models.Identity) (*models.SignedSession, error) {
	if identity == nil || identity.ID == "" {
		return nil, dErrors.New(dErrors.CodeInternal, "cannot issue session without identity")
	}
	issuedAt := i.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.ttl)
	jti := uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		UserID: identity.ID,
		Email:  identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   identity.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return &models.SignedSession{
		Token:     signed,
		ExpiresAt: expiresAt,
		Claims: models.Claims{
			UserID:    identity.ID,
			Email:     identity.Email,
			SessionID: jti,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	}, nil
}

// Decode verifies the token and then consults the revocation list. Every
// failure, including an unreachable revocation list, returns
// ErrInvalidSession.
func (i *Issuer) Decode(ctx context.Context, token string) (*models.Claims, error) {
	claims, err := i.Verify(token)
	if err != nil {
		return nil, err
	}

	if i.revocations != nil {
		revoked, err := i.revocations.IsRevoked(ctx, claims.SessionID)
		if err != nil {
			i.logger.ErrorContext(ctx, "revocation check failed", "error", err)
			return nil, ErrInvalidSession
		}
		if revoked {
			return nil, ErrInvalidSession
		}
	}
	return claims, nil
}

// Verify checks signature, algorithm, issuer and expiry only. Logout uses it
// so a token can be revoked while the revocation list is unreadable.
func (i *Issuer) Verify(token string) (*models.Claims, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	var claims tokenClaims
	parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidSession
	}

	out := &models.Claims{
		UserID:    claims.UserID,
		Email:     claims.Email,
		SessionID: claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Revoke blocks a decoded session until it would have expired anyway.
func (i *Issuer) Revoke(ctx context.Context, claims *models.Claims) error {
	if i.revocations == nil || claims == nil || claims.SessionID == "" {
		return nil
	}
	remaining := claims.ExpiresAt.Sub(i.now())
	if remaining <= 0 {
		return nil
	}
	if err := i.revocations.Revoke(ctx, claims.SessionID, remaining); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
