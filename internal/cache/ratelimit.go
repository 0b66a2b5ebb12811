package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitPrefix is the Redis key prefix for token buckets.
const rateLimitPrefix = "ratelimit:"

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int64
	RetryAfter time.Duration
}

// tokenBucketScript refills and takes one token atomically.
// Times are in milliseconds so sub-second refill rates work.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])   -- tokens per millisecond
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(data[1]) or burst
	local ts = tonumber(data[2]) or now

	tokens = math.min(burst, tokens + math.max(0, now - ts) * rate)

	local allowed = 0
	local wait = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		wait = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tokens, 'ts', now)
	redis.call('PEXPIRE', key, ttl)

	return {allowed, wait, math.floor(tokens)}
`)

// Allow takes one token from the bucket identified by scope and subject.
// The subject is hashed so raw client addresses are never stored.
//
// On Redis errors the request is allowed and the error is returned so the
// caller can log it.
func (c *Cache) Allow(ctx context.Context, scope, subject string, ratePerSecond float64, burst int) (*RateLimitResult, error) {
	open := &RateLimitResult{Allowed: true, Limit: burst, Remaining: int64(burst)}
	if ratePerSecond <= 0 || burst <= 0 {
		return open, nil
	}

	key := rateLimitPrefix + scope + ":" + hashSubject(subject)
	ttl := bucketTTL(ratePerSecond, burst)

	res, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		ratePerSecond/1000.0, burst, time.Now().UnixMilli(), ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return open, fmt.Errorf("rate limit script: %w", err)
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Limit:      burst,
		Remaining:  res[2],
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
	}, nil
}

// bucketTTL is the time for an empty bucket to refill, plus slack.
func bucketTTL(ratePerSecond float64, burst int) time.Duration {
	secs := math.Ceil(float64(burst)/ratePerSecond) + 1
	return time.Duration(secs) * time.Second
}

// hashSubject creates a truncated SHA256 hash of a client identifier.
func hashSubject(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
