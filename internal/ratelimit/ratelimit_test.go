package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funcsea/appbackend/internal/conf"
)

func newRedisLimiterForTest(t *testing.T, r conf.Rate) (*miniredis.Miniredis, *RedisLimiter) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return m, NewRedisLimiter(client, r, "rl_test")
}

func TestRedisLimiterAllowsThenDenies(t *testing.T) {
	m, lmt := newRedisLimiterForTest(t, conf.Rate{Events: 2, OverTime: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := lmt.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.True(t, ok, "request %d", i)
	}

	ok, err := lmt.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	// other keys keep their own window
	ok, err = lmt.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, ok)

	ttl := m.TTL("rl_test:1.2.3.4")
	assert.True(t, ttl > 0 && ttl <= time.Minute, "ttl %s", ttl)

	m.FastForward(time.Minute + time.Second)

	ok, err = lmt.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiterBackendError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  20 * time.Millisecond,
		ReadTimeout:  20 * time.Millisecond,
		WriteTimeout: 20 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })

	lmt := NewRedisLimiter(client, conf.Rate{Events: 1, OverTime: time.Second}, "")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := lmt.Allow(ctx, "k")
	require.Error(t, err)

	_, err = NewRedisLimiter(nil, conf.Rate{}, "").Allow(ctx, "k")
	require.Error(t, err)
}

func TestMemoryLimiter(t *testing.T) {
	lmt := NewMemoryLimiter(conf.Rate{Events: 3, OverTime: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := lmt.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, ok, "request %d", i)
	}

	ok, err := lmt.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = lmt.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew(t *testing.T) {
	r := conf.Rate{Events: 1, OverTime: time.Minute}

	lmt, err := New(&conf.RateLimitConfiguration{Backend: "memory"}, r, "auth")
	require.NoError(t, err)
	assert.IsType(t, &MemoryLimiter{}, lmt)

	m := miniredis.RunT(t)
	lmt, err = New(&conf.RateLimitConfiguration{Backend: "redis", RedisURL: "redis://" + m.Addr()}, r, "auth")
	require.NoError(t, err)
	require.IsType(t, &RedisLimiter{}, lmt)
	defer lmt.(*RedisLimiter).Close()

	ok, err := lmt.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, m.Exists("auth:k"))

	_, err = New(&conf.RateLimitConfiguration{Backend: "memcached"}, r, "")
	require.Error(t, err)

	_, err = New(&conf.RateLimitConfiguration{Backend: "redis", RedisURL: "::"}, r, "")
	require.Error(t, err)
}
