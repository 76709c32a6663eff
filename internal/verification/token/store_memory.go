package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"casbot/pkg/platform/sentinel"
)

// DefaultSweepInterval is how often go-cache sweeps entries nobody consumed.
const DefaultSweepInterval = time.Minute

// InMemoryRegistry keeps pending verifications in process memory. Liveness is
// decided by the registry clock against ExpiresAt; go-cache holds each entry
// one sweep interval longer so an expired token still reads as ErrExpired
// until it is consumed or swept. mu makes each issue/consume/expire a single
// critical section across the token and requester indexes.
type InMemoryRegistry struct {
	mu         sync.Mutex
	byToken    *gocache.Cache // token -> Pending
	byUser     *gocache.Cache // requester -> token
	ttl        time.Duration
	sweep      time.Duration
	now        func() time.Time
	tokenMaker func() (string, error)

	// wmu guards watchers alone: go-cache calls OnEvicted from its janitor
	// and from Delete, with or without mu held.
	wmu      sync.Mutex
	watchers map[string]chan struct{}
}

// MemoryOption configures an InMemoryRegistry.
type MemoryOption func(*InMemoryRegistry)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(r *InMemoryRegistry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock injects the time source used for expiry decisions.
func WithClock(now func() time.Time) MemoryOption {
	return func(r *InMemoryRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSweepInterval sets how often unconsumed entries are dropped and how
// long they are kept past their expiry.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(r *InMemoryRegistry) {
		if d > 0 {
			r.sweep = d
		}
	}
}

// WithTokenGenerator replaces NewToken, for tests that need predictable tokens.
func WithTokenGenerator(gen func() (string, error)) MemoryOption {
	return func(r *InMemoryRegistry) {
		if gen != nil {
			r.tokenMaker = gen
		}
	}
}

// NewInMemory constructs an empty in-memory registry.
func NewInMemory(opts ...MemoryOption) *InMemoryRegistry {
	r := &InMemoryRegistry{
		watchers:   make(map[string]chan struct{}),
		ttl:        DefaultTTL,
		sweep:      DefaultSweepInterval,
		now:        time.Now,
		tokenMaker: NewToken,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.byToken = gocache.New(r.retention(), r.sweep)
	r.byUser = gocache.New(r.retention(), r.sweep)
	r.byToken.OnEvicted(func(token string, _ interface{}) {
		r.closeWatcher(token)
	})
	return r
}

func (r *InMemoryRegistry) Issue(_ context.Context, requesterID string) (Pending, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.liveForUser(requesterID, now); ok {
		return existing, false, nil
	}

	token, err := r.tokenMaker()
	if err != nil {
		return Pending{}, false, err
	}
	if _, taken := r.byToken.Get(token); taken {
		return Pending{}, false, fmt.Errorf("issue verification token: collision: %w", sentinel.ErrAlreadyUsed)
	}

	p := Pending{Token: token, RequesterID: requesterID, ExpiresAt: now.Add(r.ttl)}
	r.byToken.Set(token, p, r.retention())
	r.byUser.Set(requesterID, token, r.retention())
	r.wmu.Lock()
	r.watchers[token] = make(chan struct{})
	r.wmu.Unlock()
	return p, true, nil
}

func (r *InMemoryRegistry) Consume(_ context.Context, token string) (Pending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.get(token)
	if !ok {
		r.closeWatcher(token)
		return Pending{}, fmt.Errorf("verification token: %w", sentinel.ErrNotFound)
	}
	r.remove(p)
	if !p.Live(r.now()) {
		return Pending{}, fmt.Errorf("verification token: %w", sentinel.ErrExpired)
	}
	return p, nil
}

func (r *InMemoryRegistry) Expire(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.get(token); ok {
		r.remove(p)
		return nil
	}
	r.closeWatcher(token)
	return nil
}

func (r *InMemoryRegistry) Lookup(_ context.Context, token string) (Pending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.get(token)
	if !ok {
		return Pending{}, fmt.Errorf("verification token: %w", sentinel.ErrNotFound)
	}
	if !p.Live(r.now()) {
		return Pending{}, fmt.Errorf("verification token: %w", sentinel.ErrExpired)
	}
	return p, nil
}

func (r *InMemoryRegistry) Watch(token string) <-chan struct{} {
	r.wmu.Lock()
	defer r.wmu.Unlock()

	if ch, ok := r.watchers[token]; ok {
		return ch
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Len returns the number of entries not yet removed, live or not.
func (r *InMemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byToken.ItemCount()
}

// Watching returns the number of open watch channels.
func (r *InMemoryRegistry) Watching() int {
	r.wmu.Lock()
	defer r.wmu.Unlock()
	return len(r.watchers)
}

func (r *InMemoryRegistry) retention() time.Duration {
	return r.ttl + r.sweep
}

// liveForUser must be called with mu held.
func (r *InMemoryRegistry) liveForUser(requesterID string, now time.Time) (Pending, bool) {
	v, ok := r.byUser.Get(requesterID)
	if !ok {
		return Pending{}, false
	}
	p, ok := r.get(v.(string))
	if !ok {
		return Pending{}, false
	}
	if !p.Live(now) {
		r.remove(p)
		return Pending{}, false
	}
	return p, true
}

// get must be called with mu held.
func (r *InMemoryRegistry) get(token string) (Pending, bool) {
	v, ok := r.byToken.Get(token)
	if !ok {
		return Pending{}, false
	}
	return v.(Pending), true
}

// remove must be called with mu held. Deleting from byToken closes the
// watcher through OnEvicted.
func (r *InMemoryRegistry) remove(p Pending) {
	r.byToken.Delete(p.Token)
	if v, ok := r.byUser.Get(p.RequesterID); ok && v.(string) == p.Token {
		r.byUser.Delete(p.RequesterID)
	}
	r.closeWatcher(p.Token)
}

func (r *InMemoryRegistry) closeWatcher(token string) {
	r.wmu.Lock()
	defer r.wmu.Unlock()
	if ch, ok := r.watchers[token]; ok {
		close(ch)
		delete(r.watchers, token)
	}
}
