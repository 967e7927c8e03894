package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/funcsea/appbackend/internal/api/apierrors"
	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/ratelimit"
)

// recordingLimiter allows the first n events and remembers every key.
type recordingLimiter struct {
	mu   sync.Mutex
	n    int
	keys []string
	err  error
}

func (l *recordingLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return false, l.err
	}
	l.keys = append(l.keys, key)
	return len(l.keys) <= l.n, nil
}

type MiddlewareTestSuite struct {
	suite.Suite
	API    *API
	Config *conf.GlobalConfiguration
}

func TestMiddlewareFunctions(t *testing.T) {
	api, config := setupAPIForTest(t, nil)

	ts := &MiddlewareTestSuite{
		API:    api,
		Config: config,
	}

	suite.Run(t, ts)
}

func (ts *MiddlewareTestSuite) SetupTest() {
	ts.Config.RateLimit.Header = ""
}

func (ts *MiddlewareTestSuite) TestLimitHandler() {
	lmt := &recordingLimiter{n: 1}
	handler := ts.API.limitHandler(lmt)

	req := httptest.NewRequest(http.MethodPost, "http://localhost", nil)
	req.RemoteAddr = "192.0.2.10:1234"

	_, err := handler(httptest.NewRecorder(), req)
	require.NoError(ts.T(), err)

	_, err = handler(httptest.NewRecorder(), req)
	require.Error(ts.T(), err)

	httpErr, ok := err.(*HTTPError)
	require.True(ts.T(), ok)
	assert.Equal(ts.T(), http.StatusTooManyRequests, httpErr.HTTPStatus)
	assert.Equal(ts.T(), apierrors.ErrorCodeOverRequestRateLimit, httpErr.ErrorCode)
	assert.Equal(ts.T(), []string{"192.0.2.10", "192.0.2.10"}, lmt.keys)
}

func (ts *MiddlewareTestSuite) TestLimitHandlerWithHeader() {
	ts.Config.RateLimit.Header = "X-Rate-Limit"

	lmt := &recordingLimiter{n: 10}
	handler := ts.API.limitHandler(lmt)

	req := httptest.NewRequest(http.MethodPost, "http://localhost", nil)
	_, err := handler(httptest.NewRecorder(), req)
	require.NoError(ts.T(), err)
	assert.Empty(ts.T(), lmt.keys, "requests without the header are not limited")

	req.Header.Set("X-Rate-Limit", "tenant-a")
	_, err = handler(httptest.NewRecorder(), req)
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), []string{"tenant-a"}, lmt.keys)
}

func (ts *MiddlewareTestSuite) TestLimitHandlerBackendDown() {
	handler := ts.API.limitHandler(&recordingLimiter{err: errors.New("redis: connection refused")})

	_, err := handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "http://localhost", nil))
	require.NoError(ts.T(), err)
}

func (ts *MiddlewareTestSuite) TestLimitHandlerMemory() {
	lmt := ratelimit.NewMemoryLimiter(conf.Rate{Events: 2, OverTime: time.Minute})
	api, _ := setupAPIForTest(ts.T(), nil, &LimiterOptions{Auth: lmt})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := jsonRequest(ts.T(), http.MethodPost, "/api/v1/auth/token/exchange", map[string]string{})
		req.RemoteAddr = "198.51.100.7:4000"
		w := httptest.NewRecorder()
		api.handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(ts.T(), http.StatusBadRequest, codes[0])
	assert.Equal(ts.T(), http.StatusBadRequest, codes[1])
	assert.Equal(ts.T(), http.StatusTooManyRequests, codes[2])
}

func (ts *MiddlewareTestSuite) TestRequestID() {
	w := httptest.NewRecorder()
	ts.API.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(ts.T(), w.Header().Get("X-Request-ID"))

	api, _ := setupAPIForTest(ts.T(), func(c *conf.GlobalConfiguration) {
		c.API.RequestIDHeader = "X-Upstream-ID"
	})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Upstream-ID", "abc-123")
	w = httptest.NewRecorder()
	api.handler.ServeHTTP(w, req)
	assert.Equal(ts.T(), "abc-123", w.Header().Get("X-Request-ID"))
}

func (ts *MiddlewareTestSuite) TestTimeoutMiddleware() {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	timeoutMiddleware(10*time.Millisecond)(slow).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(ts.T(), http.StatusGatewayTimeout, w.Code)

	var body HTTPError
	decodeBody(ts.T(), w, &body)
	assert.Equal(ts.T(), apierrors.ErrorCodeRequestTimeout, body.ErrorCode)
}

func (ts *MiddlewareTestSuite) TestTimeoutMiddlewareFastHandler() {
	fast := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("done"))
	})

	w := httptest.NewRecorder()
	timeoutMiddleware(time.Second)(fast).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(ts.T(), http.StatusCreated, w.Code)
	assert.Equal(ts.T(), "yes", w.Header().Get("X-Test"))
	assert.Equal(ts.T(), "done", w.Body.String())
}

func (ts *MiddlewareTestSuite) TestTimeoutMiddlewareDisabled() {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline := r.Context().Deadline()
		assert.False(ts.T(), hasDeadline)
		called = true
	})

	timeoutMiddleware(0)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(ts.T(), called)
}
