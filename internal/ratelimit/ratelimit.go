package ratelimit

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/funcsea/appbackend/internal/conf"
)

// Limiter decides whether another event for key fits in the configured
// rate.
//
// Implementations of Limiter must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if an event for key is allowed now. A non-nil
	// error means the backend could not be consulted.
	Allow(ctx context.Context, key string) (bool, error)
}

// New returns the Limiter selected by config.Backend for the given rate.
//
// The memory backend keeps counters per process. The redis backend shares
// them between every instance pointed at the same REDIS_URL.
func New(config *conf.RateLimitConfiguration, r conf.Rate, prefix string) (Limiter, error) {
	switch config.Backend {
	case "", "memory":
		return NewMemoryLimiter(r), nil
	case "redis":
		opts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "ratelimit: invalid REDIS_URL")
		}
		return NewRedisLimiter(redis.NewClient(opts), r, prefix), nil
	default:
		return nil, fmt.Errorf("ratelimit: unknown backend %q", config.Backend)
	}
}
