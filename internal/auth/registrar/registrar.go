// Package registrar creates identities. Duplicate detection is left to the
// store's uniqueness constraint; there is no check-then-insert.
package registrar

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"parkspot/internal/auth/credential"
	"parkspot/internal/auth/models"
	"parkspot/internal/auth/provider"
	dErrors "parkspot/pkg/domain-errors"
	"parkspot/pkg/platform/sentinel"
	"parkspot/pkg/requestcontext"
)

type IdentityCreator interface {
	Create(ctx context.Context, identity *models.Identity) error
}

type ProviderSignUp interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*provider.SignUpResult, error)
}

type OrphanRecorder interface {
	RecordOrphan(ctx context.Context, providerUserID, email string, cause error) error
}

type config struct {
	minPasswordLength   int
	requireConfirmation bool
	bcryptCost          int
	logger              *slog.Logger
}

type Option func(*config)

func WithMinPasswordLength(n int) Option {
	return func(c *config) {
		c.minPasswordLength = n
	}
}

// WithRequireConfirmation sets requiresConfirmation on local registrations.
// Provider registrations take the flag from the provider's answer.
func WithRequireConfirmation(required bool) Option {
	return func(c *config) {
		c.requireConfirmation = required
	}
}

func WithBcryptCost(cost int) Option {
	return func(c *config) {
		c.bcryptCost = cost
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func newConfig(opts []Option) config {
	c := config{
		minPasswordLength: DefaultMinPasswordLength,
		bcryptCost:        bcrypt.DefaultCost,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LocalRegistrar hashes the password and writes the identity in one insert.
type LocalRegistrar struct {
	store IdentityCreator
	cfg   config
}

func NewLocal(store IdentityCreator, opts ...Option) *LocalRegistrar {
	return &LocalRegistrar{store: store, cfg: newConfig(opts)}
}

func (r *LocalRegistrar) Register(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationResult, error) {
	if err := Validate(req, r.cfg.minPasswordLength); err != nil {
		return nil, err
	}

	hash, err := credential.HashPassword(req.Password, r.cfg.bcryptCost)
	if err != nil {
		return nil, err
	}

	identity := profileFromRequest(uuid.NewString(), req)
	identity.PasswordHash = hash
	identity.Confirmed = !r.cfg.requireConfirmation
	identity.CreatedAt = requestcontext.Now(ctx)

	if err := r.store.Create(ctx, identity); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "User with this email already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Failed to create user")
	}

	r.cfg.logger.InfoContext(ctx, "identity registered",
		"user_id", identity.ID,
		"mode", "local",
		"request_id", requestcontext.RequestID(ctx),
	)
	return &models.RegistrationResult{
		UserID:               identity.ID,
		Email:                identity.Email,
		RequiresConfirmation: r.cfg.requireConfirmation,
	}, nil
}

// ProviderRegistrar runs the two-phase signup: the provider creates the
// canonical identity, then the local store keeps the extended profile under
// the provider-issued id.
type ProviderRegistrar struct {
	provider ProviderSignUp
	profiles IdentityCreator
	orphans  OrphanRecorder
	cfg      config
}

func NewProvider(p ProviderSignUp, profiles IdentityCreator, orphans OrphanRecorder, opts ...Option) *ProviderRegistrar {
	return &ProviderRegistrar{provider: p, profiles: profiles, orphans: orphans, cfg: newConfig(opts)}
}

func (r *ProviderRegistrar) Register(ctx context.Context, req *models.RegistrationRequest) (*models.RegistrationResult, error) {
	if err := Validate(req, r.cfg.minPasswordLength); err != nil {
		return nil, err
	}

	email := models.NormalizeEmail(req.Email)
	signup, err := r.provider.SignUp(ctx, email, req.Password, providerMetadata(req))
	if err != nil {
		return nil, credential.MapProviderError(err)
	}
	if signup == nil || signup.User == nil || signup.User.ID == "" {
		return nil, dErrors.New(dErrors.CodeInternal, "Failed to create user - no user ID returned")
	}
	providerUserID := signup.User.ID

	identity := profileFromRequest(providerUserID, req)
	identity.Confirmed = signup.User.Confirmed()
	identity.CreatedAt = requestcontext.Now(ctx)

	if err := r.profiles.Create(ctx, identity); err != nil {
		if recErr := r.orphans.RecordOrphan(ctx, providerUserID, email, err); recErr != nil {
			r.cfg.logger.ErrorContext(ctx, "orphan outbox write failed",
				"provider_user_id", providerUserID,
				"error", recErr,
			)
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "User with this email already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeProfilePersistenceFailed, "Failed to store user data")
	}

	r.cfg.logger.InfoContext(ctx, "identity registered",
		"user_id", providerUserID,
		"mode", "provider",
		"request_id", requestcontext.RequestID(ctx),
	)
	return &models.RegistrationResult{
		UserID:               providerUserID,
		Email:                email,
		RequiresConfirmation: !signup.User.Confirmed(),
	}, nil
}

func providerMetadata(req *models.RegistrationRequest) map[string]any {
	meta := map[string]any{
		"first_name": req.FirstName,
		"last_name":  req.LastName,
	}
	if req.ContactNo != "" {
		meta["contact_no"] = req.ContactNo
	}
	if req.Coordinates != nil {
		meta["coordinates"] = strconv.FormatFloat(req.Coordinates.Latitude, 'f', -1, 64) + "," +
			strconv.FormatFloat(req.Coordinates.Longitude, 'f', -1, 64)
	}
	return meta
}
