package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"parkspot/internal/auth/models"
	"parkspot/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore relies on the unique index on lower(email); it never checks
// for an existing row before inserting.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const insertIdentity = `
INSERT INTO identities (
    id, email, password_hash, first_name, last_name, contact_no,
    street, city, state, zip_code, latitude, longitude, confirmed, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

const selectIdentity = `
SELECT id, email, password_hash, first_name, last_name, contact_no,
       street, city, state, zip_code, latitude, longitude, confirmed, created_at
FROM identities`

func (s *PostgresStore) Create(ctx context.Context, identity *models.Identity) error {
	var street, city, state, zip *string
	if a := identity.Address; a != nil {
		street, city, state, zip = &a.Street, &a.City, &a.State, &a.ZipCode
	}
	var lat, lng *float64
	if c := identity.Coordinates; c != nil {
		lat, lng = &c.Latitude, &c.Longitude
	}

	_, err := s.pool.Exec(ctx, insertIdentity,
		identity.ID,
		identity.Email,
		nullable(identity.PasswordHash),
		identity.FirstName,
		identity.LastName,
		nullable(identity.ContactNo),
		street, city, state, zip,
		lat, lng,
		identity.Confirmed,
		identity.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert identity: %s: %w", pgErr.ConstraintName, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	row := s.pool.QueryRow(ctx, selectIdentity+` WHERE lower(email) = $1`, models.NormalizeEmail(email))
	return scanIdentity(row)
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	row := s.pool.QueryRow(ctx, selectIdentity+` WHERE id = $1`, id)
	return scanIdentity(row)
}

func scanIdentity(row pgx.Row) (*models.Identity, error) {
	var (
		identity                 models.Identity
		hash, contact            *string
		street, city, state, zip *string
		lat, lng                 *float64
	)
	err := row.Scan(
		&identity.ID, &identity.Email, &hash, &identity.FirstName, &identity.LastName, &contact,
		&street, &city, &state, &zip, &lat, &lng, &identity.Confirmed, &identity.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	if hash != nil {
		identity.PasswordHash = *hash
	}
	if contact != nil {
		identity.ContactNo = *contact
	}
	if street != nil {
		identity.Address = &models.Address{Street: *street, City: deref(city), State: deref(state), ZipCode: deref(zip)}
	}
	if lat != nil && lng != nil {
		identity.Coordinates = &models.Coordinates{Latitude: *lat, Longitude: *lng}
	}
	return &identity, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
