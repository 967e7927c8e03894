package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/funcsea/appbackend/internal/api/apierrors"
	"github.com/funcsea/appbackend/internal/api/payment_provider"
	"github.com/funcsea/appbackend/internal/observability"
)

func (a *API) paymentProvider() (payment_provider.PaymentProvider, error) {
	if a.providerOpts.Payment != nil {
		return a.providerOpts.Payment, nil
	}

	p, err := payment_provider.NewStripeProvider(a.config.Payment, a.httpClient)
	if err != nil {
		if errors.Is(err, payment_provider.ErrNotConfigured) {
			return nil, serviceUnavailableError(apierrors.ErrorCodePaymentDisabled, "Payment service not configured")
		}
		return nil, internalServerError("Payment service error").WithInternalError(err)
	}
	return p, nil
}

func paymentError(err error) error {
	var verr *payment_provider.ValidationError
	if errors.As(err, &verr) {
		return badRequestError(apierrors.ErrorCodeValidationFailed, "%s", verr.Message)
	}

	ce := payment_provider.ClassifyError(err)
	return apierrors.NewHTTPError(ce.HTTPStatus(), apierrors.ErrorCodePaymentFailure, "%s", ce.Error()).WithInternalError(err)
}

// PaymentCheckoutCreate starts a Stripe checkout session for the current
// user.
func (a *API) PaymentCheckoutCreate(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	claims := getClaims(ctx)

	params := &payment_provider.CheckoutSessionRequest{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}

	p, err := a.paymentProvider()
	if err != nil {
		return err
	}

	if params.Metadata == nil {
		params.Metadata = map[string]string{}
	}
	if claims != nil {
		params.Metadata["user_id"] = claims.Subject
		params.Metadata["email"] = claims.Email
	}

	session, err := p.CreateCheckoutSession(ctx, params)
	if err != nil {
		observability.GetLogEntry(r).WithError(err).Warn("checkout session creation failed")
		return paymentError(err)
	}

	observability.LogEntrySetField(r, "checkout_session_id", session.SessionID)
	return sendJSON(w, http.StatusOK, session)
}

// PaymentCheckoutGet returns the state of a checkout session.
func (a *API) PaymentCheckoutGet(w http.ResponseWriter, r *http.Request) error {
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		return badRequestError(apierrors.ErrorCodeValidationFailed, "session_id is required")
	}

	p, err := a.paymentProvider()
	if err != nil {
		return err
	}

	status, err := p.GetCheckoutSession(r.Context(), sessionID)
	if err != nil {
		return paymentError(err)
	}
	return sendJSON(w, http.StatusOK, status)
}
