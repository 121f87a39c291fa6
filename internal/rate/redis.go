package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript counts one request in KEYS[1]. The first request of
// a window sets its expiry. Returns {count, remaining ttl in ms}.
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Redis is a Limiter whose windows live in Redis, so every instance
// behind a load balancer shares the same counters. Expiry is handled by
// Redis itself; there is nothing to sweep.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	nowFunc func() time.Time
}

// NewRedis returns a Redis limiter storing keys under prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &Redis{client: client, prefix: prefix, nowFunc: time.Now}
}

// Check implements Limiter.
func (r *Redis) Check(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	res, err := fixedWindowScript.Run(ctx, r.client, []string{r.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate: redis check %q: %w", key, err)
	}
	if len(res) != 2 {
		return Result{}, fmt.Errorf("rate: redis check %q: unexpected reply %v", key, res)
	}
	resetAt := r.nowFunc().Add(time.Duration(res[1]) * time.Millisecond)
	return decide(int(res[0]), limit, resetAt), nil
}

var _ Limiter = (*Redis)(nil)
