package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/funcsea/appbackend/internal/conf"
)

const defaultWindow = time.Minute

// fixedWindowScript increments the counter of the current window and sets
// its expiry when the window starts. It returns the count after the
// increment.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisLimiter is a fixed window counter stored in redis.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisLimiter returns a limiter which allows r.Events per r.OverTime
// for every key.
func NewRedisLimiter(client redis.UniversalClient, r conf.Rate, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	window := r.OverTime
	if window <= 0 {
		window = defaultWindow
	}
	limit := int64(r.Events)
	if limit < 1 {
		limit = 1
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.client == nil {
		return false, errors.New("ratelimit: redis client is nil")
	}
	if key == "" {
		key = "unknown"
	}

	storeKey := fmt.Sprintf("%s:%s", l.prefix, key)
	count, err := fixedWindowScript.Run(ctx, l.client, []string{storeKey}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, errors.Wrap(err, "ratelimit: redis script failed")
	}
	return count <= l.limit, nil
}

// Close releases the redis connection pool.
func (l *RedisLimiter) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}
