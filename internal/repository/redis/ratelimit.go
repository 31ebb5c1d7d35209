package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sliding window over a sorted set of hit timestamps. A rejected hit is not
// recorded, so a caller that keeps retrying is admitted as soon as the oldest
// admitted hit leaves the window.
//
// KEYS[1] = key
// ARGV[1] = now_ms, ARGV[2] = window_ms, ARGV[3] = limit, ARGV[4] = member
// returns {allowed, remaining, retry_after_ms}
const luaSlidingWindow = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)

local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
  local retry = window
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  return {0, 0, retry}
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, limit - count - 1, 0}
`

// Decision is the outcome of one hit.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// SlidingWindowLimiter admits at most limit hits per key within any window.
type SlidingWindowLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
	script *redis.Script
	now    func() time.Time
}

func NewSlidingWindowLimiter(
	rdb *redis.Client,
	prefix string,
	limit int,
	window time.Duration,
) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		rdb:    rdb,
		prefix: prefix,
		limit:  limit,
		window: window,
		script: redis.NewScript(luaSlidingWindow),
		now:    time.Now,
	}
}

func (l *SlidingWindowLimiter) key(suffix string) string {
	return fmt.Sprintf("%s:%s", l.prefix, suffix)
}

// Allow records a hit for suffix if it fits the window. A nil or disabled
// limiter admits everything.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, suffix string) (Decision, error) {
	const op = "redis.SlidingWindowLimiter.Allow"

	if l == nil || l.limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	res, err := l.script.Run(
		ctx,
		l.rdb,
		[]string{l.key(suffix)},
		l.now().UnixMilli(), l.window.Milliseconds(), l.limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%s: %w", op, err)
	}

	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%s: bad script result %v", op, res)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
