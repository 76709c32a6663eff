package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"casbot/internal/roster/models"
	"casbot/pkg/platform/sentinel"
	"casbot/pkg/requestcontext"
)

// InMemoryStore keeps the roster in a map. It backs tests and local runs
// without a database.
type InMemoryStore struct {
	mu         sync.RWMutex
	identities map[string]models.Identity
}

// NewInMemory creates an empty roster.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{identities: make(map[string]models.Identity)}
}

func (s *InMemoryStore) FindByPlatformID(_ context.Context, platformID string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if identity, ok := s.identities[platformID]; ok {
		return &identity, nil
	}
	return nil, fmt.Errorf("identity %s: %w", platformID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindBySecondaryKey(_ context.Context, rollNo string) (*models.Identity, error) {
	rollNo = strings.TrimSpace(rollNo)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, identity := range s.identities {
		if identity.RollNo == rollNo {
			return &identity, nil
		}
	}
	return nil, fmt.Errorf("identity with roll number %s: %w", rollNo, sentinel.ErrNotFound)
}

func (s *InMemoryStore) Upsert(ctx context.Context, identity models.Identity) error {
	if identity.PlatformID == "" {
		return fmt.Errorf("upsert identity: platform id is required")
	}
	if identity.VerifiedAt.IsZero() {
		identity.VerifiedAt = requestcontext.Now(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[identity.PlatformID] = identity
	return nil
}
