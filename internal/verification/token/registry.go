// Package token issues and tracks the single-use verification tokens that
// bridge an in-chat /verify request to the portal's callback.
//
// A token is a bearer secret: whoever holds it can complete the sign-in of
// the requester it was issued to. Tokens are therefore long, random and
// short-lived, and every read-and-remove goes through one critical section.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"casbot/pkg/platform/sentinel"
)

// DefaultTTL is how long a sign-in link stays valid.
const DefaultTTL = 300 * time.Second

// tokenBytes of entropy; base64url encodes them to 43 characters.
const tokenBytes = 32

// Pending is a verification waiting for its callback.
type Pending struct {
	Token       string
	RequesterID string
	ExpiresAt   time.Time
}

// Live reports whether the entry is still usable at now. An entry is dead at
// its expiry instant, not just after it.
func (p Pending) Live(now time.Time) bool {
	return now.Before(p.ExpiresAt)
}

// Registry is the single source of truth for pending sign-ins.
//
// Error Contract:
// - Consume and Lookup return sentinel.ErrNotFound for unknown or consumed tokens
// - Consume and Lookup return sentinel.ErrExpired for a token still held past its expiry;
//   Consume removes it, so the caller that sees ErrExpired owns the timeout
// - expiry is judged by the registry clock; storage keeps entries for a grace
//   period past ExpiresAt so an unclaimed token reads as ErrExpired, not ErrNotFound
// - Expire is idempotent and never returns ErrNotFound
// - infrastructure failures are wrapped with context
type Registry interface {
	// Issue returns a live token for requesterID. The bool is true when a new
	// token was created and false when an existing live one is reused.
	Issue(ctx context.Context, requesterID string) (Pending, bool, error)
	// Consume atomically removes the token. Only one caller can win.
	Consume(ctx context.Context, token string) (Pending, error)
	// Expire removes the token unconditionally.
	Expire(ctx context.Context, token string) error
	// Lookup reads a live token without consuming it.
	Lookup(ctx context.Context, token string) (Pending, error)
}

// Watcher is implemented by registries that can signal when a token leaves
// the registry, letting waiters wake immediately instead of on their next poll.
type Watcher interface {
	// Watch returns a channel closed once token is consumed or expired.
	// Unknown tokens yield an already-closed channel.
	Watch(token string) <-chan struct{}
}

// IsGone reports whether err means the token can no longer be used.
func IsGone(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrExpired)
}

// NewToken returns a fresh URL-safe random token.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Redact shortens a token for logs.
func Redact(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:8] + "…"
}
