package utilities

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultHTTPClientTimeout = 30 * time.Second

// defaultTransport resolves http.DefaultTransport on every request so that
// replacing it (as gock does in tests) also affects clients built earlier.
type defaultTransport struct{}

func (defaultTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return http.DefaultTransport.RoundTrip(r)
}

// NewHTTPClient returns a client for outbound calls to identity, storage, AI
// and platform services. Requests carry the caller's trace context.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPClientTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(defaultTransport{}),
	}
}
