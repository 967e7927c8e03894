package api

import (
	"github.com/funcsea/appbackend/internal/api/ai_provider"
	"github.com/funcsea/appbackend/internal/api/payment_provider"
	"github.com/funcsea/appbackend/internal/api/storage_provider"
	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/ratelimit"
)

type Option interface {
	apply(*API)
}

type LimiterOptions struct {
	Auth ratelimit.Limiter
}

func (lo *LimiterOptions) apply(a *API) { a.limiterOpts = lo }

// NewLimiterOptions builds the limiters for the configured backend.
func NewLimiterOptions(gc *conf.GlobalConfiguration) (*LimiterOptions, error) {
	auth, err := ratelimit.New(&gc.RateLimit, gc.RateLimit.Auth, "auth")
	if err != nil {
		return nil, err
	}
	return &LimiterOptions{Auth: auth}, nil
}

// ProviderOptions replaces the providers normally built from configuration
// on every request. Nil fields keep the configured provider.
type ProviderOptions struct {
	Storage storage_provider.StorageProvider
	Payment payment_provider.PaymentProvider
	AI      ai_provider.AIProvider
	Logins  LoginStore
}

func (po *ProviderOptions) apply(a *API) { a.providerOpts = po }
