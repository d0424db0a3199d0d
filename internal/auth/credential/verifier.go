// Package credential verifies an email/password pair, either against the
// local identity store or by delegating to the identity provider.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"parkspot/internal/auth/models"
	"parkspot/internal/auth/provider"
	dErrors "parkspot/pkg/domain-errors"
	"parkspot/pkg/platform/sentinel"
)

// ErrInvalidCredentials is returned for unknown emails and wrong passwords
// alike. Callers must not be able to tell the two apart.
var ErrInvalidCredentials = dErrors.New(dErrors.CodeInvalidCredentials, "Invalid credentials")

// Verification is a successful check. ProviderSession is set only when the
// identity provider performed the check.
type Verification struct {
	Identity        *models.Identity
	ProviderSession *provider.Session
}

type IdentityFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
}

type LocalVerifier struct {
	store     IdentityFinder
	logger    *slog.Logger
	dummyHash []byte
}

type LocalOption func(*LocalVerifier)

func WithLogger(logger *slog.Logger) LocalOption {
	return func(v *LocalVerifier) {
		v.logger = logger
	}
}

// NewLocalVerifier precomputes a hash at the given bcrypt cost so unknown
// emails pay the same comparison cost as known ones.
func NewLocalVerifier(store IdentityFinder, cost int, opts ...LocalOption) (*LocalVerifier, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("parkspot-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}
	v := &LocalVerifier{
		store:     store,
		logger:    slog.Default(),
		dummyHash: dummy,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *LocalVerifier) Verify(ctx context.Context, email, password string) (*Verification, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "Email and password are required")
	}

	identity, err := v.store.FindByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up identity")
		}
		_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}

	if identity.PasswordHash == "" {
		// Provider-only identity; there is nothing local to compare against.
		_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			v.logger.WarnContext(ctx, "stored password hash is unusable", "user_id", identity.ID, "error", err)
		}
		return nil, ErrInvalidCredentials
	}

	return &Verification{Identity: identity}, nil
}

type PasswordSignIn interface {
	SignInWithPassword(ctx context.Context, email, password string) (*provider.Session, error)
}

type ProviderVerifier struct {
	provider PasswordSignIn
}

func NewProviderVerifier(p PasswordSignIn) *ProviderVerifier {
	return &ProviderVerifier{provider: p}
}

func (v *ProviderVerifier) Verify(ctx context.Context, email, password string) (*Verification, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "Email and password are required")
	}

	session, err := v.provider.SignInWithPassword(ctx, models.NormalizeEmail(email), password)
	if err != nil {
		return nil, MapProviderError(err)
	}

	return &Verification{
		Identity: &models.Identity{
			ID:        session.User.ID,
			Email:     session.User.Email,
			Confirmed: session.User.Confirmed(),
		},
		ProviderSession: session,
	}, nil
}

// MapProviderError turns provider client errors into domain errors.
func MapProviderError(err error) error {
	switch {
	case errors.Is(err, provider.ErrInvalidCredentials):
		return ErrInvalidCredentials
	case errors.Is(err, provider.ErrAlreadyRegistered):
		return dErrors.Wrap(err, dErrors.CodeConflict, "User with this email already exists")
	case errors.Is(err, provider.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "Identity provider unavailable")
	}
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return dErrors.Wrap(err, dErrors.CodeProviderError, apiErr.Message)
	}
	return dErrors.Wrap(err, dErrors.CodeProviderError, "Identity provider error")
}
