package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arrowhq/sentinel/internal/apperr"
)

// telegramBucketKey is the single shared bucket key: the 20 msg/s
// budget is per-bot, and this process only ever talks to one bot, so
// no per-chat or per-worker sharding is needed (§4.7).
const telegramBucketKey = "notify:telegram:bucket"

// tokenBucketScript implements a Redis-resident token bucket: tokens
// refill continuously at rate/sec up to capacity, and one call
// consumes a single token if available. Mirrors the atomic
// check-and-act Lua pattern used for distributed locks elsewhere in
// this stack.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local data = redis.call("HMGET", key, "tokens", "timestamp")
local tokens = tonumber(data[1])
local timestamp = tonumber(data[2])

if tokens == nil then
	tokens = capacity
	timestamp = now
end

local delta = math.max(0, now - timestamp)
local filled = math.min(capacity, tokens + (delta * rate / 1000.0))

local allowed = 0
if filled >= 1 then
	allowed = 1
	filled = filled - 1
end

redis.call("HMSET", key, "tokens", tostring(filled), "timestamp", tostring(now))
redis.call("EXPIRE", key, 10)

return allowed
`)

// TelegramLimiter enforces the 20 msg/s shared Telegram Bot API budget
// across every delivery worker in the cluster (§4.7, §5).
type TelegramLimiter struct {
	client   *redis.Client
	rate     float64
	capacity float64
}

// NewTelegramLimiter builds a limiter refilling at ratePerSecond up to
// a burst of capacity tokens.
func NewTelegramLimiter(client *redis.Client, ratePerSecond float64, capacity float64) *TelegramLimiter {
	return &TelegramLimiter{client: client, rate: ratePerSecond, capacity: capacity}
}

// Allow consumes one token if available without blocking.
func (l *TelegramLimiter) Allow(ctx context.Context) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := tokenBucketScript.Run(ctx, l.client, []string{telegramBucketKey}, l.rate, l.capacity, now).Int()
	if err != nil {
		return false, apperr.Transient("notify.TelegramLimiter.Allow", "token bucket script failed", err)
	}
	return res == 1, nil
}

// Wait blocks until a token is available or ctx is done, polling at a
// fixed interval well below the 1/rate spacing so it doesn't itself
// become the bottleneck.
func (l *TelegramLimiter) Wait(ctx context.Context) error {
	const pollInterval = 10 * time.Millisecond
	for {
		ok, err := l.Allow(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return apperr.Deadline("notify.TelegramLimiter.Wait", "context done waiting for telegram rate limit token", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}
