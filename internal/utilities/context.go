package utilities

import (
	"context"
	"sync"
)

type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID stores the X-Request-ID value for loggers further down.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns "" when no request id was stored.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WaitForCleanup returns once wg is done or ctx expires, whichever is first.
func WaitForCleanup(ctx context.Context, wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}
