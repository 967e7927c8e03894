package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/funcsea/appbackend/internal/api/apierrors"
	"github.com/funcsea/appbackend/internal/api/provider"
	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/crypto"
	"github.com/funcsea/appbackend/internal/metering"
	"github.com/funcsea/appbackend/internal/models"
	"github.com/funcsea/appbackend/internal/observability"
	"github.com/funcsea/appbackend/internal/security"
	"github.com/funcsea/appbackend/internal/storage"
	"github.com/funcsea/appbackend/internal/tokens"
	"github.com/funcsea/appbackend/internal/utilities"
)

const callbackPath = "/api/v1/auth/callback"

var oidcLoginCounter = observability.ObtainMetricCounter("appbackend_oidc_login_total", "Number of OIDC login attempts by outcome")

// callbackError is a failed callback step. Message is shown to the user on
// the frontend error page.
type callbackError struct {
	Message string
	Err     error
}

func (e *callbackError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *callbackError) Cause() error {
	if e.Err != nil {
		return e.Err
	}
	return e
}

func newCallbackError(message string, err error) *callbackError {
	return &callbackError{Message: message, Err: err}
}

type PlatformTokenExchangeParams struct {
	PlatformToken string `json:"platform_token"`
}

type PlatformTokenExchangeResponse struct {
	Token string `json:"token"`
}

type MeResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role"`
	LastLogin string `json:"last_login,omitempty"`
}

type LogoutResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// dbConnection returns the lazily opened database bound to ctx.
func (a *API) dbConnection(ctx context.Context) (*storage.Connection, error) {
	conn, err := a.db.Connection(ctx)
	if err != nil {
		return nil, serviceUnavailableError(apierrors.ErrorCodeDatabaseDown, "Database is not available").WithInternalError(err)
	}
	return conn.WithContext(ctx), nil
}

// oidcProvider returns the identity provider client, discovering it on first
// use. A failed discovery is retried on the next request.
func (a *API) oidcProvider(r *http.Request) (*provider.OIDCProvider, error) {
	config := a.config.OIDC
	if !config.Enabled() {
		return nil, serviceUnavailableError(apierrors.ErrorCodeOIDCDisabled, "OIDC provider is not configured")
	}

	a.oidcMu.Lock()
	defer a.oidcMu.Unlock()
	if a.oidc != nil && a.oidcConfig == config {
		return a.oidc, nil
	}

	p, err := provider.NewOIDCProvider(a.ctx, config, a.httpClient)
	if err != nil {
		return nil, badGatewayError(apierrors.ErrorCodeOIDCDisabled, "Unable to reach the identity provider").WithInternalError(err)
	}
	observability.GetLogEntry(r).WithField("issuer", p.Issuer).Info("identity provider client ready")
	a.oidc, a.oidcConfig = p, config
	return p, nil
}

// OIDCLogin starts the authorization code flow with PKCE and nonce.
func (a *API) OIDCLogin(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	config := a.config

	p, err := a.oidcProvider(r)
	if err != nil {
		return err
	}

	state := crypto.LoginToken()
	nonce := crypto.LoginToken()
	pkce := security.NewPKCE()

	if err := a.loginStore().SaveState(ctx, state, nonce, pkce.Verifier, config.OIDC.StateTTL); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		return internalServerError("Error storing login state").WithInternalError(err)
	}

	redirectURI := utilities.BackendURL(r, config) + callbackPath
	observability.LogEntrySetField(r, "redirect_uri", redirectURI)

	w.Header().Set("X-Request-ID", state)
	http.Redirect(w, r, p.AuthCodeURL(redirectURI, state, nonce, pkce.Verifier), http.StatusFound)
	return nil
}

// OIDCCallback finishes the login. Every outcome is a redirect, failures go
// to the frontend error page.
func (a *API) OIDCCallback(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	query := r.URL.Query()

	redirectURL, err := a.handleOIDCCallback(ctx, r, query.Get("code"), query.Get("state"), query.Get("error"), query.Get("error_description"))
	if err != nil {
		log := observability.GetLogEntry(r)

		var cerr *callbackError
		message := "Authentication processing failed. Please try again or contact support if the issue persists."
		if errors.As(err, &cerr) {
			message = cerr.Message
			log.WithError(cerr.Cause()).Info("oidc callback failed")
		} else {
			log.WithError(err).Error("unexpected error in oidc callback")
		}

		oidcLoginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failure")))
		http.Redirect(w, r, frontendErrorURL(a.config, message), http.StatusFound)
		return nil
	}

	oidcLoginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	http.Redirect(w, r, redirectURL, http.StatusFound)
	return nil
}

func (a *API) handleOIDCCallback(ctx context.Context, r *http.Request, code, state, oidcError, oidcErrorDescription string) (string, error) {
	config := a.config

	if oidcError != "" {
		detail := oidcErrorDescription
		if detail == "" {
			detail = oidcError
		}
		return "", newCallbackError("OIDC error: "+detail, nil)
	}

	if code == "" || state == "" {
		return "", newCallbackError("Missing code or state parameter", nil)
	}

	p, err := a.oidcProvider(r)
	if err != nil {
		return "", newCallbackError("Authentication service is not available", err)
	}

	logins := a.loginStore()

	stored, err := logins.ConsumeState(ctx, state)
	if err != nil {
		var httpErr *HTTPError
		switch {
		case models.IsNotFoundError(err):
			return "", newCallbackError("Invalid or expired state parameter", err)
		case errors.As(err, &httpErr):
			return "", newCallbackError("Authentication service is not available", err)
		}
		return "", err
	}

	backendURL := utilities.BackendURL(r, config)

	idToken, err := p.ExchangeCode(ctx, backendURL+callbackPath, code, stored.CodeVerifier)
	if err != nil {
		var exchangeErr *provider.TokenExchangeError
		if errors.As(err, &exchangeErr) {
			return "", newCallbackError(exchangeErr.Error(), exchangeErr.Err)
		}
		if errors.Is(err, provider.ErrMissingIDToken) {
			return "", newCallbackError(err.Error(), nil)
		}
		return "", err
	}

	claims, err := p.ValidateIDToken(ctx, idToken)
	if err != nil {
		var idErr *provider.IDTokenError
		if errors.As(err, &idErr) {
			return "", newCallbackError("Authentication failed: "+idErr.Message, idErr)
		}
		return "", err
	}

	if claims.Nonce != stored.Nonce {
		return "", newCallbackError("Invalid nonce", nil)
	}

	user, err := logins.RecordLogin(ctx, claims.Subject, claims.Email, claims.DisplayName())
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", errors.Errorf("login of %q was not recorded", claims.Subject)
	}
	metering.RecordLogin(metering.LoginTypeOIDC, user.ID, &metering.LoginData{
		Provider: issuerHost(config),
		Extra:    map[string]interface{}{"role": user.Role},
	})

	resp, err := tokens.IssueAccessTokenResponse(&config.JWT, user)
	if err != nil {
		return "", err
	}

	return resp.AsRedirectURL(backendURL + "/auth/callback"), nil
}

// PlatformTokenExchange trades a platform token of the admin user for an
// application token.
func (a *API) PlatformTokenExchange(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	config := a.config

	params := &PlatformTokenExchangeParams{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}
	if params.PlatformToken == "" {
		return badRequestError(apierrors.ErrorCodeValidationFailed, "platform_token is required")
	}

	p, err := a.oidcProvider(r)
	if err != nil {
		return err
	}

	platformUser, err := p.VerifyPlatformToken(ctx, params.PlatformToken)
	if err != nil {
		var rejected *provider.HTTPError
		if errors.As(err, &rejected) {
			return apierrors.NewHTTPError(rejected.Code, apierrors.ErrorCodePlatformTokenBad, "%s", rejected.Message)
		}
		for _, known := range []error{provider.ErrPlatformInvalidResponse, provider.ErrPlatformUnexpectedResponse} {
			if errors.Is(err, known) {
				return badGatewayError(apierrors.ErrorCodePlatformVerify, "%s", known.Error()).WithInternalError(err)
			}
		}
		return badGatewayError(apierrors.ErrorCodePlatformVerify, "%s", provider.ErrPlatformUnreachable.Error()).WithInternalError(err)
	}

	if platformUser.UserID == "" {
		return unauthorizedError(apierrors.ErrorCodePlatformTokenBad, "Platform token payload missing user_id")
	}

	if platformUser.UserID != config.Admin.UserID {
		observability.GetLogEntry(r).WithField("platform_user_id", platformUser.UserID).Warn("platform token exchange denied for non-admin user")
		return forbiddenError(apierrors.ErrorCodeNotAdmin, "Only admin user can exchange a platform token")
	}

	email := platformUser.Email
	if email == "" {
		email = config.Admin.Email
	}
	name := platformUser.Name
	if name == "" {
		name = platformUser.Username
	}
	if name == "" {
		name = provider.NameFromEmail(email)
	}

	db, err := a.dbConnection(ctx)
	if err != nil {
		return err
	}

	if _, err := models.UpsertUserOnLogin(db, platformUser.UserID, email, name); err != nil {
		return internalServerError("Error saving user").WithInternalError(err)
	}
	user, err := models.EnsureAdminUser(db, platformUser.UserID, email)
	if err != nil {
		return internalServerError("Error saving user").WithInternalError(err)
	}
	if user == nil {
		return internalServerError("Error saving user")
	}

	token, _, err := tokens.IssueAccessToken(&config.JWT, user, 0)
	if err != nil {
		return internalServerError("Error issuing token").WithInternalError(err)
	}
	metering.RecordLogin(metering.LoginTypePlatform, user.ID, &metering.LoginData{Provider: issuerHost(config)})

	return sendJSON(w, http.StatusOK, PlatformTokenExchangeResponse{Token: token})
}

// Me returns the identity carried by the access token.
func (a *API) Me(w http.ResponseWriter, r *http.Request) error {
	claims := getClaims(r.Context())
	if claims == nil {
		return unauthorizedError(apierrors.ErrorCodeNoAuthorization, "Authentication credentials were not provided")
	}

	return sendJSON(w, http.StatusOK, MeResponse{
		ID:        claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		Role:      claims.Role,
		LastLogin: claims.LastLogin,
	})
}

// Logout returns the identity provider logout URL. It never fails for
// anonymous callers.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) error {
	config := a.config

	if claims := getClaims(r.Context()); claims != nil {
		observability.LogEntrySetField(r, "user_id", claims.Subject)
	}

	p := &provider.OIDCProvider{Logout: config.OIDC.IssuerURL + "/logout"}
	if config.OIDC.Enabled() && config.OIDC.DiscoveryEnabled {
		discovered, err := a.oidcProvider(r)
		if err != nil {
			observability.GetLogEntry(r).WithError(err).Warn("unable to discover logout endpoint, using the issuer default")
		} else {
			p = discovered
		}
	}

	return sendJSON(w, http.StatusOK, LogoutResponse{
		RedirectURL: p.LogoutURL(config.API.FrontendURL+"/logout-callback", r.URL.Query().Get("id_token_hint")),
	})
}

func issuerHost(config *conf.GlobalConfiguration) string {
	u, err := url.Parse(config.OIDC.IssuerURL)
	if err != nil {
		return ""
	}
	return u.Host
}
