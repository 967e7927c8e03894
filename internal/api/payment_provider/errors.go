package payment_provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/stripe/stripe-go/v76"
)

// Checkout error types.
const (
	ErrorTypeAuthentication = "authentication"
	ErrorTypeNetwork        = "network"
	ErrorTypeAPI            = "api_error"
	ErrorTypeValidation     = "validation"
	ErrorTypeCard           = "card_error"
	ErrorTypeRateLimit      = "rate_limit"
	ErrorTypeIdempotency    = "idempotency"
	ErrorTypeUnknown        = "unknown"
)

// ErrNotConfigured is returned when STRIPE_SECRET_KEY is not set.
var ErrNotConfigured = errors.New("Payment service not configured")

// CheckoutError is a classified failure returned by the payment backend.
type CheckoutError struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Code        string `json:"code,omitempty"`
	Param       string `json:"param,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
	Retryable   bool   `json:"retryable"`
	UserFixable bool   `json:"user_fixable"`

	Err error `json:"-"`
}

func (e *CheckoutError) Error() string {
	var details []string
	if e.Code != "" {
		details = append(details, "code="+e.Code)
	}
	if e.Param != "" {
		details = append(details, "param="+e.Param)
	}
	if len(details) == 0 {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, strings.Join(details, ", "))
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

// HTTPStatus is the status the API answers with for this error.
func (e *CheckoutError) HTTPStatus() int {
	switch {
	case e.UserFixable:
		return http.StatusBadRequest
	case e.Retryable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// ClassifyError turns an error returned by stripe-go into a CheckoutError.
// A CheckoutError is returned unchanged.
func ClassifyError(err error) *CheckoutError {
	if err == nil {
		return nil
	}

	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce
	}

	var se *stripe.Error
	if errors.As(err, &se) {
		return classifyStripeError(se)
	}

	if isNetworkError(err) {
		return &CheckoutError{
			Type:      ErrorTypeNetwork,
			Message:   err.Error(),
			Retryable: true,
			Err:       err,
		}
	}

	return &CheckoutError{
		Type:    ErrorTypeUnknown,
		Message: err.Error(),
		Err:     err,
	}
}

func classifyStripeError(se *stripe.Error) *CheckoutError {
	ce := &CheckoutError{
		Type:       ErrorTypeUnknown,
		Message:    se.Msg,
		Code:       string(se.Code),
		Param:      se.Param,
		StatusCode: se.HTTPStatusCode,
		Err:        se,
	}
	if ce.Message == "" {
		ce.Message = se.Error()
	}

	switch {
	case se.HTTPStatusCode == http.StatusUnauthorized:
		ce.Type = ErrorTypeAuthentication
	case se.HTTPStatusCode == http.StatusTooManyRequests || se.Code == stripe.ErrorCodeRateLimit:
		ce.Type = ErrorTypeRateLimit
		ce.Retryable = true
	case se.Type == stripe.ErrorTypeCard:
		ce.Type = ErrorTypeCard
		ce.UserFixable = true
	case se.Type == stripe.ErrorTypeIdempotency:
		ce.Type = ErrorTypeIdempotency
	case se.Type == stripe.ErrorTypeInvalidRequest:
		ce.Type = ErrorTypeValidation
		ce.UserFixable = true
	case se.Type == stripe.ErrorTypeAPI:
		ce.Type = ErrorTypeAPI
		ce.Retryable = se.HTTPStatusCode >= 500 && se.HTTPStatusCode < 600
	case se.HTTPStatusCode >= 500:
		ce.Type = ErrorTypeAPI
		ce.Retryable = true
	}

	return ce
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
