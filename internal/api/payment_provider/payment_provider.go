package payment_provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ModePayment      = "payment"
	ModeSubscription = "subscription"

	UIModeHosted   = "hosted"
	UIModeEmbedded = "embedded"

	// CheckoutSessionIDPlaceholder is substituted by Stripe in return and
	// success URLs.
	CheckoutSessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

	defaultCurrency    = "usd"
	defaultProductName = "Payment"
)

// PaymentProvider creates and inspects checkout sessions.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutStatus, error)
}

// ValidationError is returned by CheckoutSessionRequest.Validate.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationError(fmtString string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(fmtString, args...)}
}

// CheckoutSessionRequest describes a checkout the caller wants to start.
type CheckoutSessionRequest struct {
	Mode           string            `json:"mode"`
	UIMode         string            `json:"ui_mode"`
	Amount         *decimal.Decimal  `json:"amount,omitempty"`
	StripePriceID  string            `json:"stripe_price_id,omitempty"`
	Currency       string            `json:"currency"`
	ProductName    string            `json:"product_name"`
	Quantity       int64             `json:"quantity"`
	SuccessURL     string            `json:"success_url,omitempty"`
	CancelURL      string            `json:"cancel_url,omitempty"`
	ReturnURL      string            `json:"return_url,omitempty"`
	CustomerEmail  string            `json:"customer_email,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// ApplyDefaults fills the optional fields left empty by the caller. A zero
// quantity is treated as missing.
func (r *CheckoutSessionRequest) ApplyDefaults() {
	if r.Mode == "" {
		r.Mode = ModePayment
	}
	if r.UIMode == "" {
		r.UIMode = UIModeHosted
	}
	if r.Currency == "" {
		r.Currency = defaultCurrency
	}
	r.Currency = strings.ToLower(r.Currency)
	if r.ProductName == "" {
		r.ProductName = defaultProductName
	}
	if r.Quantity == 0 {
		r.Quantity = 1
	}
}

// Validate checks the mode and ui mode rules. It expects ApplyDefaults to
// have been called.
func (r *CheckoutSessionRequest) Validate() error {
	if r.Amount != nil && !r.Amount.IsPositive() {
		return validationError("Amount must be greater than 0")
	}
	if r.Quantity < 1 {
		return validationError("Quantity must be greater than 0")
	}

	switch r.Mode {
	case ModeSubscription:
		if r.StripePriceID == "" {
			return validationError("stripe_price_id is required for subscription mode")
		}
		if r.Amount != nil {
			return validationError("amount must not be provided for subscription mode")
		}
	case ModePayment:
		if r.Amount == nil && r.StripePriceID == "" {
			return validationError("Either amount or stripe_price_id must be provided for payment mode")
		}
		if r.Amount != nil && r.StripePriceID != "" {
			return validationError("Cannot provide both amount and stripe_price_id for payment mode")
		}
	default:
		return validationError("mode must be %s or %s", ModePayment, ModeSubscription)
	}

	switch r.UIMode {
	case UIModeEmbedded:
		if r.ReturnURL == "" {
			return validationError("return_url is required when ui_mode='embedded'")
		}
		if !strings.Contains(r.ReturnURL, CheckoutSessionIDPlaceholder) {
			return validationError("return_url must include %s", CheckoutSessionIDPlaceholder)
		}
	case UIModeHosted:
		if r.SuccessURL == "" || r.CancelURL == "" {
			return validationError("success_url and cancel_url are required when ui_mode='hosted'")
		}
		if !strings.Contains(r.SuccessURL, CheckoutSessionIDPlaceholder) {
			return validationError("success_url must include %s", CheckoutSessionIDPlaceholder)
		}
	default:
		return validationError("ui_mode must be %s or %s", UIModeHosted, UIModeEmbedded)
	}

	return nil
}

// ToCents converts a dollar amount to the smallest currency unit, rounding
// half up.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// CheckoutSession is the result of creating a session. URL is set in hosted
// mode, ClientSecret in embedded mode.
type CheckoutSession struct {
	SessionID    string `json:"session_id"`
	URL          string `json:"url,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	UIMode       string `json:"ui_mode"`
}

type CheckoutStatus struct {
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}
