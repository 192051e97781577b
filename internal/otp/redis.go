package otp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps Redis failures returned by RedisStore.
var ErrStoreUnavailable = errors.New("otp store unavailable")

// consumeChallengeLua atomically performs HMGET→compare→DEL/HINCRBY on a challenge hash.
// KEYS[1] = challenge key
// ARGV[1] = provided code hash (hex)
// ARGV[2] = current unix milliseconds
// ARGV[3] = max attempts (0 = unlimited)
//
// Returns one of: "accepted", "mismatch", "absent", "expired", "exhausted".
var consumeChallengeLua = redis.NewScript(`
local h = redis.call('HMGET', KEYS[1], 'hash', 'expires_at')
if not h[1] then
  return 'absent'
end

local expiresAt = tonumber(h[2]) or 0
local nowMs = tonumber(ARGV[2])
if expiresAt > 0 and nowMs >= expiresAt then
  redis.call('DEL', KEYS[1])
  return 'expired'
end

if h[1] == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 'accepted'
end

local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
local maxAttempts = tonumber(ARGV[3])
if maxAttempts > 0 and attempts >= maxAttempts then
  redis.call('DEL', KEYS[1])
  return 'exhausted'
end
return 'mismatch'
`)

// RedisStore keeps challenges in Redis hashes so several processes share one table.
// Keys expire with the challenge; challenges without expiry have no key TTL.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore using keys "<prefix>:<identity>".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "orbit:otp"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(identity string) string {
	return s.prefix + ":" + identity
}

// Put stores c for identity, replacing any pending challenge and its attempt count.
func (s *RedisStore) Put(ctx context.Context, identity string, c Challenge) error {
	key := s.key(identity)
	var expiresAt int64
	if !c.ExpiresAt.IsZero() {
		expiresAt = c.ExpiresAt.UnixMilli()
	}
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"hash", c.CodeHash,
			"issued_at", c.IssuedAt.UnixMilli(),
			"expires_at", expiresAt,
			"attempts", c.Attempts,
		)
		if expiresAt > 0 {
			p.PExpireAt(ctx, key, c.ExpiresAt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ConsumeIfMatch implements Store with a single Lua script.
func (s *RedisStore) ConsumeIfMatch(ctx context.Context, identity, codeHash string, maxAttempts int, now time.Time) (Outcome, error) {
	res, err := consumeChallengeLua.Run(ctx, s.redis, []string{s.key(identity)}, codeHash, now.UnixMilli(), maxAttempts).Text()
	if err != nil {
		return OutcomeAbsent, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	switch res {
	case "accepted":
		return OutcomeAccepted, nil
	case "mismatch":
		return OutcomeMismatch, nil
	case "absent":
		return OutcomeAbsent, nil
	case "expired":
		return OutcomeExpired, nil
	case "exhausted":
		return OutcomeExhausted, nil
	default:
		return OutcomeAbsent, fmt.Errorf("%w: unexpected lua result %q", ErrStoreUnavailable, res)
	}
}

// Connect opens a Redis client for addr, which may be a redis:// URL or host:port,
// and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("otp: parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return client, nil
}
