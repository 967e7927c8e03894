package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gobuffalo/pop/v6/logging"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLoggerCarriesHandlerFields(t *testing.T) {
	logger, hook := test.NewNullLogger()

	r := chi.NewRouter()
	r.Use(NewStructuredLogger(logger))
	r.Get("/api/v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		LogEntrySetField(r, "user_id", chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/users/u1", nil))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "request completed", entry.Message)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "u1", entry.Data["user_id"])
	assert.Equal(t, 404, entry.Data["status"])
	assert.Equal(t, "/api/v1/users/u1", entry.Data["path"])
}

func TestGetLogEntryOutsideMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.NotNil(t, GetLogEntry(req))
	assert.NotPanics(t, func() { LogEntrySetField(req, "k", "v") })
}

func TestRequestTracingRestoresUserAgent(t *testing.T) {
	var seen string
	r := chi.NewRouter()
	r.Use(RequestTracing())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		seen = r.UserAgent()
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("User-Agent", "test-agent/1.0")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test-agent/1.0", seen)
}

func TestPopLoggerHonoursSQLMode(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	popLogger(LOG_SQL_NONE)(logging.SQL, "SELECT 1")
	assert.Empty(t, hook.AllEntries())

	popLogger(LOG_SQL_STATEMENT)(logging.SQL, "SELECT 1", 42)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "sql", hook.LastEntry().Data["component"])
	assert.NotContains(t, hook.LastEntry().Data, "args")

	popLogger(LOG_SQL_ALL)(logging.SQL, "SELECT 1", 42)
	assert.Equal(t, []interface{}{42}, hook.LastEntry().Data["args"])
}
