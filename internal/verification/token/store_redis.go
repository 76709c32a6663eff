package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"casbot/pkg/platform/sentinel"
)

const (
	tokenKeyPrefix = "casbot:verify:token:"
	userKeyPrefix  = "casbot:verify:user:"

	fieldRequester = "requester"
	fieldExpiresAt = "expires_at"

	// issueAttempts bounds retries when another issue for the same requester
	// lands between the index read and the script.
	issueAttempts = 3
)

var errIssueRaced = errors.New("requester index changed during issue")

// issueScript reuses the requester's live token or stores a new one. Every
// key it touches is declared; the caller passes the token it saw in the
// requester index so the script can detect a concurrent issue.
// KEYS: user key, new token key, observed token key.
// ARGV: new token, requester, expires_at ms, retention ms, now ms, observed token.
// Returns {token, expires_at ms, created} with created -1 on a lost race.
var issueScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if (current or '') ~= ARGV[6] then
  return {'', 0, -1}
end
if current then
  local exp = tonumber(redis.call('HGET', KEYS[3], 'expires_at'))
  if exp and exp > tonumber(ARGV[5]) then
    return {current, exp, 0}
  end
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return redis.error_reply('token collision')
end
redis.call('HSET', KEYS[2], 'requester', ARGV[2], 'expires_at', ARGV[3])
redis.call('PEXPIRE', KEYS[2], ARGV[4])
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[4])
return {ARGV[1], tonumber(ARGV[3]), 1}
`)

// takeScript deletes the token and, when it still points there, the
// requester index. A token's requester never changes, so the caller can read
// it beforehand to name the index key.
// KEYS: token key, user key. ARGV: token. Returns {requester, expires_at} or nil.
var takeScript = redis.NewScript(`
local fields = redis.call('HMGET', KEYS[1], 'requester', 'expires_at')
if not fields[1] then
  return false
end
redis.call('DEL', KEYS[1])
if redis.call('GET', KEYS[2]) == ARGV[1] then
  redis.call('DEL', KEYS[2])
end
return fields
`)

// RedisRegistry shares pending verifications across bot replicas. Each token
// is a hash carrying its requester and expiry; liveness is decided against
// the registry clock, and Redis keeps the keys for a grace period after
// expiry so an unclaimed token still reads as ErrExpired.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
	grace  time.Duration
	now    func() time.Time
}

// RedisOption configures a RedisRegistry.
type RedisOption func(*RedisRegistry)

// WithRedisTTL overrides DefaultTTL.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *RedisRegistry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRedisGrace sets how long keys outlive their expiry.
func WithRedisGrace(grace time.Duration) RedisOption {
	return func(r *RedisRegistry) {
		if grace > 0 {
			r.grace = grace
		}
	}
}

// WithRedisClock injects the time source used for expiry decisions.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *RedisRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRedis constructs a Redis-backed registry. The client lifecycle is
// managed by the caller.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisRegistry {
	r := &RedisRegistry{client: client, ttl: DefaultTTL, grace: DefaultSweepInterval, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *RedisRegistry) Issue(ctx context.Context, requesterID string) (Pending, bool, error) {
	token, err := NewToken()
	if err != nil {
		return Pending{}, false, err
	}
	for range issueAttempts {
		p, created, err := r.issue(ctx, requesterID, token)
		if errors.Is(err, errIssueRaced) {
			continue
		}
		return p, created, err
	}
	return Pending{}, false, fmt.Errorf("issue verification token: %w", errIssueRaced)
}

func (r *RedisRegistry) issue(ctx context.Context, requesterID, token string) (Pending, bool, error) {
	userKey := userKeyPrefix + requesterID
	observed, err := r.client.Get(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Pending{}, false, fmt.Errorf("issue verification token: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	observedKey := tokenKeyPrefix + token
	if observed != "" {
		observedKey = tokenKeyPrefix + observed
	}

	now := r.now()
	res, err := issueScript.Run(ctx, r.client,
		[]string{userKey, tokenKeyPrefix + token, observedKey},
		token, requesterID, now.Add(r.ttl).UnixMilli(), (r.ttl + r.grace).Milliseconds(), now.UnixMilli(), observed,
	).Slice()
	if err != nil {
		return Pending{}, false, fmt.Errorf("issue verification token: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	if len(res) != 3 {
		return Pending{}, false, fmt.Errorf("issue verification token: unexpected reply %v", res)
	}

	issued, _ := res[0].(string)
	expiresAt, _ := res[1].(int64)
	created, _ := res[2].(int64)
	if created < 0 {
		return Pending{}, false, errIssueRaced
	}
	return Pending{
		Token:       issued,
		RequesterID: requesterID,
		ExpiresAt:   time.UnixMilli(expiresAt),
	}, created == 1, nil
}

func (r *RedisRegistry) Consume(ctx context.Context, token string) (Pending, error) {
	return r.take(ctx, token)
}

func (r *RedisRegistry) Expire(ctx context.Context, token string) error {
	_, err := r.take(ctx, token)
	if IsGone(err) {
		return nil
	}
	return err
}

func (r *RedisRegistry) Lookup(ctx context.Context, token string) (Pending, error) {
	fields, err := r.client.HMGet(ctx, tokenKeyPrefix+token, fieldRequester, fieldExpiresAt).Result()
	if err != nil {
		return Pending{}, fmt.Errorf("lookup verification token: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return r.pending(token, fields)
}

func (r *RedisRegistry) take(ctx context.Context, token string) (Pending, error) {
	tokenKey := tokenKeyPrefix + token
	requester, err := r.client.HGet(ctx, tokenKey, fieldRequester).Result()
	if errors.Is(err, redis.Nil) {
		return Pending{}, fmt.Errorf("verification token: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return Pending{}, fmt.Errorf("consume verification token: %w", errors.Join(sentinel.ErrUnavailable, err))
	}

	res, err := takeScript.Run(ctx, r.client, []string{tokenKey, userKeyPrefix + requester}, token).Slice()
	if errors.Is(err, redis.Nil) {
		return Pending{}, fmt.Errorf("verification token: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return Pending{}, fmt.Errorf("consume verification token: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return r.pending(token, res)
}

// pending decodes {requester, expires_at} and applies the registry clock.
func (r *RedisRegistry) pending(token string, fields []interface{}) (Pending, error) {
	if len(fields) != 2 || fields[0] == nil {
		return Pending{}, fmt.Errorf("verification token: %w", sentinel.ErrNotFound)
	}
	requester, _ := fields[0].(string)
	raw, _ := fields[1].(string)
	expiresAt, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Pending{}, fmt.Errorf("verification token: bad expiry %q: %w", raw, err)
	}

	p := Pending{Token: token, RequesterID: requester, ExpiresAt: time.UnixMilli(expiresAt)}
	if !p.Live(r.now()) {
		return Pending{}, fmt.Errorf("verification token: %w", sentinel.ErrExpired)
	}
	return p, nil
}
