package payment_provider

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCheckoutSessionRequestValidate(t *testing.T) {
	const (
		success = "https://app.example.com/success?session_id={CHECKOUT_SESSION_ID}"
		cancel  = "https://app.example.com/cancel"
		ret     = "https://app.example.com/return?session_id={CHECKOUT_SESSION_ID}"
	)

	cases := []struct {
		desc    string
		req     CheckoutSessionRequest
		wantErr string
	}{
		{
			desc: "hosted payment with amount",
			req:  CheckoutSessionRequest{Amount: amount("9.99"), SuccessURL: success, CancelURL: cancel},
		},
		{
			desc: "hosted payment with price",
			req:  CheckoutSessionRequest{StripePriceID: "price_1", SuccessURL: success, CancelURL: cancel},
		},
		{
			desc: "embedded subscription",
			req:  CheckoutSessionRequest{Mode: ModeSubscription, UIMode: UIModeEmbedded, StripePriceID: "price_1", ReturnURL: ret},
		},
		{
			desc:    "zero amount",
			req:     CheckoutSessionRequest{Amount: amount("0"), SuccessURL: success, CancelURL: cancel},
			wantErr: "Amount must be greater than 0",
		},
		{
			desc:    "negative amount",
			req:     CheckoutSessionRequest{Amount: amount("-1"), SuccessURL: success, CancelURL: cancel},
			wantErr: "Amount must be greater than 0",
		},
		{
			desc:    "negative quantity",
			req:     CheckoutSessionRequest{Amount: amount("1"), Quantity: -2, SuccessURL: success, CancelURL: cancel},
			wantErr: "Quantity must be greater than 0",
		},
		{
			desc:    "subscription without price",
			req:     CheckoutSessionRequest{Mode: ModeSubscription, SuccessURL: success, CancelURL: cancel},
			wantErr: "stripe_price_id is required for subscription mode",
		},
		{
			desc:    "subscription with amount",
			req:     CheckoutSessionRequest{Mode: ModeSubscription, StripePriceID: "price_1", Amount: amount("1"), SuccessURL: success, CancelURL: cancel},
			wantErr: "amount must not be provided for subscription mode",
		},
		{
			desc:    "payment without amount or price",
			req:     CheckoutSessionRequest{SuccessURL: success, CancelURL: cancel},
			wantErr: "Either amount or stripe_price_id must be provided for payment mode",
		},
		{
			desc:    "payment with amount and price",
			req:     CheckoutSessionRequest{Amount: amount("1"), StripePriceID: "price_1", SuccessURL: success, CancelURL: cancel},
			wantErr: "Cannot provide both amount and stripe_price_id for payment mode",
		},
		{
			desc:    "embedded without return url",
			req:     CheckoutSessionRequest{UIMode: UIModeEmbedded, Amount: amount("1")},
			wantErr: "return_url is required when ui_mode='embedded'",
		},
		{
			desc:    "embedded return url without placeholder",
			req:     CheckoutSessionRequest{UIMode: UIModeEmbedded, Amount: amount("1"), ReturnURL: "https://app.example.com/return"},
			wantErr: "return_url must include {CHECKOUT_SESSION_ID}",
		},
		{
			desc:    "hosted without cancel url",
			req:     CheckoutSessionRequest{Amount: amount("1"), SuccessURL: success},
			wantErr: "success_url and cancel_url are required when ui_mode='hosted'",
		},
		{
			desc:    "hosted success url without placeholder",
			req:     CheckoutSessionRequest{Amount: amount("1"), SuccessURL: "https://app.example.com/success", CancelURL: cancel},
			wantErr: "success_url must include {CHECKOUT_SESSION_ID}",
		},
		{
			desc:    "unknown mode",
			req:     CheckoutSessionRequest{Mode: "setup", Amount: amount("1"), SuccessURL: success, CancelURL: cancel},
			wantErr: "mode must be payment or subscription",
		},
		{
			desc:    "unknown ui mode",
			req:     CheckoutSessionRequest{UIMode: "popup", Amount: amount("1"), SuccessURL: success, CancelURL: cancel},
			wantErr: "ui_mode must be hosted or embedded",
		},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			req := c.req
			req.ApplyDefaults()
			err := req.Validate()
			if c.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.IsType(t, &ValidationError{}, err)
			assert.Equal(t, c.wantErr, err.Error())
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	req := CheckoutSessionRequest{Currency: "EUR"}
	req.ApplyDefaults()

	assert.Equal(t, ModePayment, req.Mode)
	assert.Equal(t, UIModeHosted, req.UIMode)
	assert.Equal(t, "eur", req.Currency)
	assert.Equal(t, "Payment", req.ProductName)
	assert.Equal(t, int64(1), req.Quantity)
}

func TestToCents(t *testing.T) {
	cases := map[string]int64{
		"1":       100,
		"9.99":    999,
		"0.015":   2,
		"0.014":   1,
		"10.005":  1001,
		"1234.5":  123450,
		"0.01":    1,
		"19.9949": 1999,
	}
	for in, want := range cases {
		assert.Equal(t, want, ToCents(decimal.RequireFromString(in)), in)
	}
}
