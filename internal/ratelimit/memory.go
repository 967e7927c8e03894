package ratelimit

import (
	"context"

	"github.com/didip/tollbooth/v5"
	"github.com/didip/tollbooth/v5/limiter"

	"github.com/funcsea/appbackend/internal/conf"
)

// MemoryLimiter is a per-process token bucket per key.
type MemoryLimiter struct {
	lmt *limiter.Limiter
}

// NewMemoryLimiter returns a tollbooth backed limiter which refills at
// r.PerSecond() with a burst of r.Burst() events.
func NewMemoryLimiter(r conf.Rate) *MemoryLimiter {
	ttl := r.OverTime
	if ttl <= 0 {
		ttl = defaultWindow
	}

	lmt := tollbooth.NewLimiter(r.PerSecond(), &limiter.ExpirableOptions{
		DefaultExpirationTTL: ttl,
	}).SetBurst(r.Burst())

	return &MemoryLimiter{lmt: lmt}
}

// Allow implements Limiter. It never returns an error.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	if key == "" {
		key = "unknown"
	}
	return !l.lmt.LimitReached(key), nil
}
