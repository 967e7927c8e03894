package apierrors

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPErrors(t *testing.T) {
	sentinel := errors.New("sentinel")

	tests := []struct {
		from error
		exp  *HTTPError
	}{

		// Status, ErrorCode, fmtStr, args
		{
			from: NewHTTPError(
				http.StatusBadRequest,
				ErrorCodeBadJSON,
				"Unable to parse JSON: %v",
				errors.New("bad syntax"),
			),
			exp: &HTTPError{
				HTTPStatus: http.StatusBadRequest,
				ErrorCode:  ErrorCodeBadJSON,
				Message:    "Unable to parse JSON: bad syntax",
			},
		},

		// ErrorCode, fmtStr, args
		{
			from: NewUnauthorizedError(ErrorCodeNoAuthorization, "Authentication credentials were not provided"),
			exp: &HTTPError{
				HTTPStatus: http.StatusUnauthorized,
				ErrorCode:  ErrorCodeNoAuthorization,
				Message:    "Authentication credentials were not provided",
			},
		},
		{
			from: NewForbiddenError(ErrorCodeNotAdmin, "Admin access required"),
			exp: &HTTPError{
				HTTPStatus: http.StatusForbidden,
				ErrorCode:  ErrorCodeNotAdmin,
				Message:    "Admin access required",
			},
		},
		{
			from: NewNotFoundError(ErrorCodeSettingNotFound, "Configuration item '%s' does not exist", "FOO"),
			exp: &HTTPError{
				HTTPStatus: http.StatusNotFound,
				ErrorCode:  ErrorCodeSettingNotFound,
				Message:    "Configuration item 'FOO' does not exist",
			},
		},
		{
			from: NewTooManyRequestsError(ErrorCodeOverRequestRateLimit, "error: %v", sentinel),
			exp: &HTTPError{
				HTTPStatus: http.StatusTooManyRequests,
				ErrorCode:  ErrorCodeOverRequestRateLimit,
				Message:    "error: " + sentinel.Error(),
			},
		},
		{
			from: NewBadGatewayError(ErrorCodeAIUpstream, "model not found"),
			exp: &HTTPError{
				HTTPStatus: http.StatusBadGateway,
				ErrorCode:  ErrorCodeAIUpstream,
				Message:    "model not found",
			},
		},
		{
			from: NewServiceUnavailableError(ErrorCodeAIDisabled, "AI service not configured"),
			exp: &HTTPError{
				HTTPStatus: http.StatusServiceUnavailable,
				ErrorCode:  ErrorCodeAIDisabled,
				Message:    "AI service not configured",
			},
		},

		// fmtStr, args
		{
			from: NewInternalServerError(
				"error: %v",
				sentinel,
			),
			exp: &HTTPError{
				HTTPStatus: http.StatusInternalServerError,
				ErrorCode:  ErrorCodeUnexpectedFailure,
				Message:    "error: " + sentinel.Error(),
			},
		},
	}

	for idx, test := range tests {
		t.Logf("tests #%v - from %v exp %#v", idx, test.from, test.exp)

		require.Error(t, test.exp)
		require.Error(t, test.from)

		exp := test.exp
		got, ok := test.from.(*HTTPError)
		if !ok {
			t.Fatalf("exp type %T, got %v", got, test.from)
		}

		require.Equal(t, exp.HTTPStatus, got.HTTPStatus)
		require.Equal(t, exp.ErrorCode, got.ErrorCode)
		require.Equal(t, exp.Message, got.Message)
		require.Equal(t, exp.Error(), got.Error())
		require.Equal(t, exp.Cause(), got.Cause())
	}

	// test Error() with internal message
	{
		err := NewHTTPError(
			http.StatusBadRequest,
			ErrorCodeBadJSON,
			"Unable to parse JSON: %v",
			errors.New("bad syntax"),
		).WithInternalError(sentinel).WithInternalMessage("%s", sentinel.Error())

		require.Equal(t, err.Error(), sentinel.Error())
		require.Equal(t, err.Cause(), sentinel)
		require.Equal(t, err.Is(sentinel), true)
	}
}

func TestHTTPErrorJSON(t *testing.T) {
	err := NewNotFoundError(ErrorCodeUserNotFound, "User profile not found").WithInternalError(errors.New("sql: no rows"))

	data, jerr := json.Marshal(err)
	require.NoError(t, jerr)
	require.JSONEq(t, `{"code":404,"error_code":"user_not_found","detail":"User profile not found"}`, string(data))
}
