package attemptlimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis, for multi-instance deployments where
// all replicas must share one attempt budget per identity. The whole
// check-increment-lock transition runs inside a single Lua script, so
// concurrent failures from different connections are all counted and exactly
// one of them applies the lock.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

const redisKeyPrefix = "attemptlimit:"

// failureScript orchestrates one failed attempt:
//
//	KEYS[1] attempts zset  KEYS[2] lock  KEYS[3] lockout streak
//	ARGV: now_ms, window_ms, threshold, base_lock_ms, max_lock_ms, exponential, nonce
//
// Returns {count, lock_ttl_ms, recorded}.
var failureScript = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[2])
if ttl > 0 then
    return {redis.call('ZCARD', KEYS[1]), ttl, 0}
end

local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
redis.call('ZADD', KEYS[1], now, ARGV[7])
redis.call('PEXPIRE', KEYS[1], window)

local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[3]) then
    return {count, 0, 1}
end

local lock = tonumber(ARGV[4])
local maxlock = tonumber(ARGV[5])
if ARGV[6] == '1' then
    local streak = redis.call('INCR', KEYS[3])
    redis.call('PEXPIRE', KEYS[3], maxlock * 2)
    for i = 2, streak do
        lock = lock * 2
        if lock >= maxlock then
            lock = maxlock
            break
        end
    end
end
if lock > maxlock then
    lock = maxlock
end

redis.call('SET', KEYS[2], '1', 'PX', lock)
redis.call('DEL', KEYS[1])
return {count, lock, 1}
`)

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix overrides the default key prefix.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, ErrStoreRequired
	}

	s := &RedisStore{
		client:    client,
		keyPrefix: redisKeyPrefix,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *RedisStore) IncrementIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, policy LockPolicy) (int64, time.Time, bool, error) {
	keys := []string{
		s.keyPrefix + "attempts:" + key,
		s.keyPrefix + "lock:" + key,
		s.keyPrefix + "streak:" + key,
	}
	exponential := "0"
	if policy.Exponential {
		exponential = "1"
	}
	args := []any{
		now.UnixMilli(),
		window.Milliseconds(),
		policy.Threshold,
		policy.Base.Milliseconds(),
		policy.Max.Milliseconds(),
		exponential,
		uuid.NewString(), // unique zset member so simultaneous attempts never collapse
	}

	res, err := failureScript.Run(ctx, s.client, keys, args...).Int64Slice()
	if err != nil {
		return 0, time.Time{}, false, err
	}

	count := res[0]
	var lockedUntil time.Time
	if res[1] > 0 {
		lockedUntil = now.Add(time.Duration(res[1]) * time.Millisecond)
	}

	return count, lockedUntil, res[2] == 1, nil
}

func (s *RedisStore) Peek(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	lockTTL, err := s.client.PTTL(ctx, s.keyPrefix+"lock:"+key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if lockTTL > 0 {
		return 0, now.Add(lockTTL), nil
	}

	cutoff := now.Add(-window).UnixMilli()
	count, err := s.client.ZCount(ctx, s.keyPrefix+"attempts:"+key,
		formatScore(cutoff), "+inf").Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	return count, time.Time{}, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx,
		s.keyPrefix+"attempts:"+key,
		s.keyPrefix+"lock:"+key,
		s.keyPrefix+"streak:"+key,
	).Err()
}

// DeleteExpired is a no-op: every key carries a TTL, so Redis expires stale
// state on its own.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) error {
	return nil
}

func formatScore(ms int64) string {
	// Exclusive lower bound keeps ZCount consistent with ZREMRANGEBYSCORE in the script.
	return "(" + strconv.FormatInt(ms, 10)
}
