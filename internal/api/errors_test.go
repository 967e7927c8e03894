package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funcsea/appbackend/internal/api/apierrors"
	"github.com/funcsea/appbackend/internal/utilities"
)

type causedError struct {
	cause error
}

func (e *causedError) Error() string { return "wrapped" }
func (e *causedError) Cause() error  { return e.cause }

func TestHandleResponseError(t *testing.T) {
	cases := []struct {
		desc     string
		err      error
		status   int
		code     string
		detail   string
		hasError bool
	}{
		{
			desc:   "client error keeps its message",
			err:    notFoundError(apierrors.ErrorCodeUserNotFound, "User profile not found"),
			status: http.StatusNotFound,
			code:   apierrors.ErrorCodeUserNotFound,
			detail: "User profile not found",
		},
		{
			desc:     "server error gets an error id",
			err:      internalServerError("Database error finding user").WithInternalError(errors.New("boom")),
			status:   http.StatusInternalServerError,
			code:     apierrors.ErrorCodeUnexpectedFailure,
			detail:   "Database error finding user",
			hasError: true,
		},
		{
			desc:   "missing error code on a client error",
			err:    &HTTPError{HTTPStatus: http.StatusConflict, Message: "conflict"},
			status: http.StatusConflict,
			code:   apierrors.ErrorCodeUnknown,
			detail: "conflict",
		},
		{
			desc:   "cause is unwrapped",
			err:    &causedError{cause: forbiddenError(apierrors.ErrorCodeNotAdmin, "Admin access required")},
			status: http.StatusForbidden,
			code:   apierrors.ErrorCodeNotAdmin,
			detail: "Admin access required",
		},
		{
			desc:     "plain errors are hidden",
			err:      errors.New("connection reset"),
			status:   http.StatusInternalServerError,
			code:     apierrors.ErrorCodeUnexpectedFailure,
			detail:   unexpectedFailureMessage,
			hasError: true,
		},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(utilities.WithRequestID(req.Context(), "req-1"))
			w := httptest.NewRecorder()

			HandleResponseError(c.err, w, req)

			require.Equal(t, c.status, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, float64(c.status), body["code"])
			assert.Equal(t, c.code, body["error_code"])
			assert.Equal(t, c.detail, body["detail"])
			if c.hasError {
				assert.Equal(t, "req-1", body["error_id"])
			} else {
				assert.NotContains(t, body, "error_id")
			}
		})
	}
}

func TestRecoverer(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body HTTPError
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, apierrors.ErrorCodeUnexpectedFailure, body.ErrorCode)
	assert.Equal(t, "Internal Server Error", body.Message)
}

func TestRecovererAbortHandler(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
