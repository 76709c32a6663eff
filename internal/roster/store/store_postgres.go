package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"casbot/internal/roster/models"
	"casbot/pkg/platform/sentinel"
	"casbot/pkg/requestcontext"
)

// Schema creates the roster table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS verified_identities (
    platform_id TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    email       TEXT NOT NULL,
    roll_no     TEXT NOT NULL,
    verified_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS verified_identities_roll_no_idx ON verified_identities (roll_no);
`

const selectIdentity = `
SELECT platform_id, name, email, roll_no, verified_at
FROM verified_identities
`

// PostgresStore persists the roster in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed roster.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate roster schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByPlatformID(ctx context.Context, platformID string) (*models.Identity, error) {
	return s.queryOne(ctx, selectIdentity+"WHERE platform_id = $1", platformID)
}

// FindBySecondaryKey returns the most recently verified member holding rollNo.
func (s *PostgresStore) FindBySecondaryKey(ctx context.Context, rollNo string) (*models.Identity, error) {
	return s.queryOne(ctx, selectIdentity+"WHERE roll_no = $1 ORDER BY verified_at DESC LIMIT 1", rollNo)
}

func (s *PostgresStore) Upsert(ctx context.Context, identity models.Identity) error {
	if identity.PlatformID == "" {
		return fmt.Errorf("upsert identity: platform id is required")
	}
	verifiedAt := identity.VerifiedAt
	if verifiedAt.IsZero() {
		verifiedAt = requestcontext.Now(ctx)
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO verified_identities (platform_id, name, email, roll_no, verified_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (platform_id) DO UPDATE SET
    name = EXCLUDED.name,
    email = EXCLUDED.email,
    roll_no = EXCLUDED.roll_no,
    verified_at = EXCLUDED.verified_at`,
		identity.PlatformID, identity.Name, identity.Email, identity.RollNo, verifiedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, arg string) (*models.Identity, error) {
	var identity models.Identity
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&identity.PlatformID,
		&identity.Name,
		&identity.Email,
		&identity.RollNo,
		&identity.VerifiedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("identity: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return &identity, nil
}
