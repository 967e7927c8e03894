package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/models"
	"github.com/funcsea/appbackend/internal/storage"
	"github.com/funcsea/appbackend/internal/storage/test"
	"github.com/funcsea/appbackend/internal/tokens"
)

const (
	apiTestVersion = "1"
	apiTestConfig  = "../../hack/test.env"
)

type allowAll struct{}

func (allowAll) Allow(context.Context, string) (bool, error) { return true, nil }

// setupAPIForTest creates an API whose database is never opened unless a
// handler needs it. cb can change the configuration before the routes are
// built.
func setupAPIForTest(t *testing.T, cb func(*conf.GlobalConfiguration), opt ...Option) (*API, *conf.GlobalConfiguration) {
	config, err := conf.LoadGlobal(apiTestConfig)
	require.NoError(t, err)

	if cb != nil {
		cb(config)
	}

	opt = append([]Option{&LimiterOptions{Auth: allowAll{}}}, opt...)
	return NewAPIWithVersion(context.Background(), config, storage.NewManager(config, models.All()...), apiTestVersion, opt...), config
}

// setupAPIForTestWithDB creates an API backed by the test database, skipping
// t when the database is unreachable.
func setupAPIForTestWithDB(t *testing.T, cb func(*conf.GlobalConfiguration), opt ...Option) (*API, *conf.GlobalConfiguration, *storage.Connection) {
	config, err := conf.LoadGlobal(apiTestConfig)
	require.NoError(t, err)

	if cb != nil {
		cb(config)
	}

	conn := test.SetupDBConnectionOrSkip(t, config)

	opt = append([]Option{&LimiterOptions{Auth: allowAll{}}}, opt...)
	api := NewAPIWithVersion(context.Background(), config, storage.NewManagerWithConnection(config, conn), apiTestVersion, opt...)
	return api, config, conn
}

func accessToken(t *testing.T, config *conf.GlobalConfiguration, id, email, role string) string {
	user := models.NewUser(id, email, "", role)
	token, _, err := tokens.IssueAccessToken(&config.JWT, user, time.Hour)
	require.NoError(t, err)
	return token
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	var r io.Reader
	if body != nil {
		var buffer bytes.Buffer
		require.NoError(t, json.NewEncoder(&buffer).Encode(body))
		r = &buffer
	}

	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	require.NoError(t, json.NewDecoder(w.Body).Decode(dst))
}

func TestNewAPIDefaultLimiters(t *testing.T) {
	config, err := conf.LoadGlobal(apiTestConfig)
	require.NoError(t, err)

	api := NewAPI(config, storage.NewManager(config))
	require.NotNil(t, api.limiterOpts.Auth)
	require.Equal(t, defaultVersion, api.version)
}

func TestNewAPIBadLimiterBackend(t *testing.T) {
	config, err := conf.LoadGlobal(apiTestConfig)
	require.NoError(t, err)
	config.RateLimit.Backend = "carrier-pigeon"

	api := NewAPI(config, storage.NewManager(config))
	require.Nil(t, api.limiterOpts.Auth)

	w := httptest.NewRecorder()
	api.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	api, _ := setupAPIForTest(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/users/profile", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")

	w := httptest.NewRecorder()
	api.handler.ServeHTTP(w, req)

	require.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSEchoesOriginOnSimpleRequest(t *testing.T) {
	api, _ := setupAPIForTest(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://other.example.org")

	w := httptest.NewRecorder()
	api.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "https://other.example.org", w.Header().Get("Access-Control-Allow-Origin"))
	require.NotEqual(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}
