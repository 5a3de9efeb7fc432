package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/delivery-engine/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// windowScript increments a one-second window counter and reports whether
// the caller fits under the limit. The counter is created with a TTL so old
// windows clean themselves up.
var windowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if n > tonumber(ARGV[1]) then
	return 0
end
return 1
`)

// RateLimiter caps provider calls per second across every dispatcher
// process sharing the Redis instance.
type RateLimiter struct {
	client    *redis.Client
	perSecond int
	now       func() time.Time
	poll      time.Duration
}

// NewRateLimiter returns nil when perSecond is not positive, which disables
// limiting.
func NewRateLimiter(client *redis.Client, perSecond int) *RateLimiter {
	if client == nil || perSecond <= 0 {
		return nil
	}
	return &RateLimiter{client: client, perSecond: perSecond, now: time.Now, poll: 50 * time.Millisecond}
}

// Allow takes one slot in the current window for provider.
func (r *RateLimiter) Allow(ctx context.Context, provider string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s:%d", provider, r.now().Unix())
	ok, err := windowScript.Run(ctx, r.client, []string{key}, r.perSecond, 2000).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", provider, err)
	}
	return ok == 1, nil
}

// Wait blocks until a slot is available or ctx ends. If Redis is
// unreachable the call is let through.
func (r *RateLimiter) Wait(ctx context.Context, provider string) error {
	for {
		ok, err := r.Allow(ctx, provider)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("rate limiter unavailable, allowing send", "provider", provider, "error", err)
			return nil
		}
		if ok {
			return nil
		}
		t := time.NewTimer(r.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
