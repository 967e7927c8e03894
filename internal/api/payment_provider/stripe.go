package payment_provider

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/funcsea/appbackend/internal/conf"
)

// StripeProvider creates checkout sessions with stripe-go.
type StripeProvider struct {
	Config *conf.PaymentConfiguration
	api    *client.API
}

// NewStripeProvider returns a PaymentProvider using STRIPE_SECRET_KEY. When
// STRIPE_API_URL is set all requests go there instead of api.stripe.com.
func NewStripeProvider(config conf.PaymentConfiguration, httpClient *http.Client) (PaymentProvider, error) {
	if !config.Enabled() {
		return nil, ErrNotConfigured
	}

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     logrus.WithField("component", "stripe"),
		MaxNetworkRetries: stripe.Int64(0),
	}
	if config.StripeAPIURL != "" {
		backendConfig.URL = stripe.String(config.StripeAPIURL)
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)
	api := client.New(config.StripeSecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	return &StripeProvider{
		Config: &config,
		api:    api,
	}, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSession, error) {
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:      stripe.String(req.Mode),
		LineItems: []*stripe.CheckoutSessionLineItemParams{lineItem(req)},
	}
	params.Context = ctx

	if req.UIMode == UIModeEmbedded {
		params.UIMode = stripe.String(UIModeEmbedded)
		params.ReturnURL = stripe.String(req.ReturnURL)
	} else {
		params.SuccessURL = stripe.String(req.SuccessURL)
		params.CancelURL = stripe.String(req.CancelURL)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, ClassifyError(err)
	}

	return &CheckoutSession{
		SessionID:    session.ID,
		URL:          session.URL,
		ClientSecret: session.ClientSecret,
		UIMode:       req.UIMode,
	}, nil
}

func (p *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, ClassifyError(err)
	}

	metadata := session.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	return &CheckoutStatus{
		Status:        string(session.Status),
		PaymentStatus: string(session.PaymentStatus),
		AmountTotal:   session.AmountTotal,
		Currency:      string(session.Currency),
		Metadata:      metadata,
	}, nil
}

func lineItem(req *CheckoutSessionRequest) *stripe.CheckoutSessionLineItemParams {
	item := &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(req.Quantity),
	}
	if req.Amount == nil {
		item.Price = stripe.String(req.StripePriceID)
		return item
	}

	item.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency: stripe.String(req.Currency),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(req.ProductName),
		},
		UnitAmount: stripe.Int64(ToCents(*req.Amount)),
	}
	return item
}
