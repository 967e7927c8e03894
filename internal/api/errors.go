package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"

	"github.com/funcsea/appbackend/internal/api/apierrors"
	"github.com/funcsea/appbackend/internal/observability"
	"github.com/funcsea/appbackend/internal/utilities"
)

type HTTPError = apierrors.HTTPError
type ErrorCode = apierrors.ErrorCode

const unexpectedFailureMessage = "Unexpected failure, please check server logs for more information"

func badRequestError(errorCode ErrorCode, fmtString string, args ...interface{}) *HTTPError {
	return apierrors.NewBadRequestError(errorCode, fmtString, args...)
}

func unauthorizedError(errorCode ErrorCode, fmtString string, args ...interface{}) *HTTPError {
	return apierrors.NewUnauthorizedError(errorCode, fmtString, args...)
}

func forbiddenError(errorCode ErrorCode, fmtString string, args ...interface{}) *HTTPError {
	return apierrors.NewForbiddenError(errorCode, fmtString, args...)
}

func notFoundError(errorCode ErrorCode, fmtString string, args ...interface{}) *HTTPError {
	return apierrors.NewNotFoundError(errorCode, fmtString, args...)
}

func tooManyRequestsError(errorCode ErrorCode, fmtString string, args ...interface{}) *HTTPError {
	return apierrors.NewTooManyRequestsError(errorCode, fmtString, args...)
}

func internalServerError(fmtString string, args ...interface{}) *HTTPError {
	return apierrors.NewInternalServerError(fmtString, args...)
}

func badGatewayError(errorCode ErrorCode, fmtString string, args ...interface{}) *HTTPError {
	return apierrors.NewBadGatewayError(errorCode, fmtString, args...)
}

func serviceUnavailableError(errorCode ErrorCode, fmtString string, args ...interface{}) *HTTPError {
	return apierrors.NewServiceUnavailableError(errorCode, fmtString, args...)
}

// Recoverer is a middleware that recovers from panics, logs the panic (and a
// backtrace), and returns a HTTP 500 (Internal Server Error) status if
// possible.
func recoverer(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				logEntry := observability.GetLogEntry(r)
				if logEntry != nil {
					logEntry.WithField("panic", fmt.Sprintf("%+v", rvr)).
						WithField("stack", string(debug.Stack())).
						Error("request panicked")
				} else {
					fmt.Fprintf(os.Stderr, "Panic: %+v\n", rvr)
					debug.PrintStack()
				}

				se := &HTTPError{
					HTTPStatus: http.StatusInternalServerError,
					ErrorCode:  apierrors.ErrorCodeUnexpectedFailure,
					Message:    http.StatusText(http.StatusInternalServerError),
				}
				HandleResponseError(se, w, r)
			}
		}()
		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// ErrorCause is an error interface that contains the method Cause() for returning root cause errors
type ErrorCause interface {
	Cause() error
}

func HandleResponseError(err error, w http.ResponseWriter, r *http.Request) {
	log := observability.GetLogEntry(r)
	errorID := utilities.GetRequestID(r.Context())

	switch e := err.(type) {
	case *HTTPError:
		switch {
		case e.HTTPStatus >= http.StatusInternalServerError:
			e.ErrorID = errorID
			// this will get us the stack trace too
			log.WithError(e.Cause()).Error(e.Error())
		case e.HTTPStatus == http.StatusTooManyRequests:
			log.WithError(e.Cause()).Warn(e.Error())
		default:
			log.WithError(e.Cause()).Info(e.Error())
		}

		if e.ErrorCode == "" {
			if e.HTTPStatus == http.StatusInternalServerError {
				e.ErrorCode = apierrors.ErrorCodeUnexpectedFailure
			} else {
				e.ErrorCode = apierrors.ErrorCodeUnknown
			}
		}

		if jsonErr := sendJSON(w, e.HTTPStatus, e); jsonErr != nil && jsonErr != context.DeadlineExceeded {
			log.WithError(jsonErr).Warn("Failed to send JSON on ResponseWriter")
		}

	case ErrorCause:
		if cause := e.Cause(); cause != nil && cause != err {
			HandleResponseError(cause, w, r)
			return
		}
		handleUnexpectedError(err, errorID, w, r)

	default:
		handleUnexpectedError(err, errorID, w, r)
	}
}

func handleUnexpectedError(err error, errorID string, w http.ResponseWriter, r *http.Request) {
	log := observability.GetLogEntry(r)
	log.WithError(err).Errorf("Unhandled server error: %s", err.Error())

	httpError := HTTPError{
		HTTPStatus: http.StatusInternalServerError,
		ErrorCode:  apierrors.ErrorCodeUnexpectedFailure,
		Message:    unexpectedFailureMessage,
		ErrorID:    errorID,
	}

	if jsonErr := sendJSON(w, http.StatusInternalServerError, httpError); jsonErr != nil && jsonErr != context.DeadlineExceeded {
		log.WithError(jsonErr).Warn("Failed to send JSON on ResponseWriter")
	}
}
