package store

import (
	"context"
	"fmt"
	"sync/atomic"

	"casbot/internal/roster/models"
	"casbot/pkg/platform/sentinel"
)

// Lazy forwards to a backend that is attached once its connection is up.
// Until then every call fails with sentinel.ErrUnavailable, which the bot
// reports as "still initializing" and the callback receiver as a 500.
type Lazy struct {
	inner atomic.Pointer[Store]
}

// NewLazy returns a Lazy with no backend attached.
func NewLazy() *Lazy {
	return &Lazy{}
}

// Attach makes s the live backend.
func (l *Lazy) Attach(s Store) {
	l.inner.Store(&s)
}

// Ready reports whether a backend is attached.
func (l *Lazy) Ready() bool {
	return l.inner.Load() != nil
}

func (l *Lazy) FindByPlatformID(ctx context.Context, platformID string) (*models.Identity, error) {
	s, err := l.backend()
	if err != nil {
		return nil, err
	}
	return s.FindByPlatformID(ctx, platformID)
}

func (l *Lazy) FindBySecondaryKey(ctx context.Context, rollNo string) (*models.Identity, error) {
	s, err := l.backend()
	if err != nil {
		return nil, err
	}
	return s.FindBySecondaryKey(ctx, rollNo)
}

func (l *Lazy) Upsert(ctx context.Context, identity models.Identity) error {
	s, err := l.backend()
	if err != nil {
		return err
	}
	return s.Upsert(ctx, identity)
}

func (l *Lazy) backend() (Store, error) {
	p := l.inner.Load()
	if p == nil {
		return nil, fmt.Errorf("roster: %w", sentinel.ErrUnavailable)
	}
	return *p, nil
}
