// Package store persists verified identities.
package store

import (
	"context"

	"casbot/internal/roster/models"
)

// Store is the roster of verified members.
//
// Error Contract:
// - finders return sentinel.ErrNotFound when no record matches
// - every method returns sentinel.ErrUnavailable while the backend is not connected
type Store interface {
	FindByPlatformID(ctx context.Context, platformID string) (*models.Identity, error)
	// FindBySecondaryKey looks a member up by institutional roll number.
	FindBySecondaryKey(ctx context.Context, rollNo string) (*models.Identity, error)
	// Upsert inserts or replaces the record for identity.PlatformID.
	Upsert(ctx context.Context, identity models.Identity) error
}
