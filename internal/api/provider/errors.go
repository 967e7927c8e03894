package provider

import "fmt"

// HTTPError is a refusal from an upstream service, carrying the status and
// message to relay to the caller.
type HTTPError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func httpError(code int, fmtString string, args ...interface{}) *HTTPError {
	return &HTTPError{
		Code:    code,
		Message: fmt.Sprintf(fmtString, args...),
	}
}

// ID token validation failure classes.
const (
	IDTokenMissingKID         = "missing_kid"
	IDTokenJWKSFetchError     = "jwks_fetch_error"
	IDTokenKeyNotFound        = "key_not_found"
	IDTokenKeyConversionError = "key_conversion_error"
	IDTokenExpired            = "token_expired"
	IDTokenInvalidSignature   = "invalid_signature"
	IDTokenInvalidIssuer      = "invalid_issuer"
	IDTokenInvalidAudience    = "invalid_audience"
	IDTokenInvalidClaims      = "invalid_claims"
	IDTokenJWTError           = "jwt_error"
	IDTokenUnexpectedError    = "unexpected_error"
)

// IDTokenError reports why an ID token was rejected. Message is safe to show
// to the user, Type is one of the IDToken* classes.
type IDTokenError struct {
	Type          string
	Message       string
	InternalError error
}

func (e *IDTokenError) Error() string {
	return e.Message
}

func (e *IDTokenError) Unwrap() error {
	return e.InternalError
}

func idTokenError(errorType, message string, err error) *IDTokenError {
	return &IDTokenError{
		Type:          errorType,
		Message:       message,
		InternalError: err,
	}
}
