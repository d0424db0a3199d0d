package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parkspot/pkg/platform/sentinel"
)

// PostgresStore keeps the outbox in the identity_orphans table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, orphan Orphan) error {
	query := `
		INSERT INTO identity_orphans (id, provider_user_id, email, reason, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		orphan.ID,
		orphan.ProviderUserID,
		orphan.Email,
		orphan.Reason,
		orphan.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert orphan: %w", err)
	}
	return nil
}

func (s *PostgresStore) Pending(ctx context.Context, limit int) ([]Orphan, error) {
	query := `
		SELECT id, provider_user_id, email, reason, recorded_at
		FROM identity_orphans
		WHERE published_at IS NULL
		ORDER BY recorded_at
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending orphans: %w", err)
	}
	defer rows.Close()

	var out []Orphan
	for rows.Next() {
		var o Orphan
		if err := rows.Scan(&o.ID, &o.ProviderUserID, &o.Email, &o.Reason, &o.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan orphan: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphans: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE identity_orphans SET published_at = $1 WHERE id = $2`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("mark orphan published: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark orphan published: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
