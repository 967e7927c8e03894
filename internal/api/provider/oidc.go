package provider

import (
	"context"
	"crypto/rsa"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/funcsea/appbackend/internal/conf"
)

// IDTokenClaims are the verified claims of an ID token.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	Claims
}

// TokenExchangeError is returned when the token endpoint call fails.
type TokenExchangeError struct {
	Detail string
	Err    error
}

func (e *TokenExchangeError) Error() string {
	return "Token exchange failed: " + e.Detail
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// ErrMissingIDToken is returned when the token endpoint answers without an
// id_token.
var ErrMissingIDToken = errors.New("No ID token received")

// OIDCProvider talks to the configured identity provider.
type OIDCProvider struct {
	*oauth2.Config

	Issuer  string
	JWKSURL string
	Logout  string

	client *http.Client
	jwks   *jwk.Cache
}

type discoveryClaims struct {
	JWKSURL            string `json:"jwks_uri"`
	EndSessionEndpoint string `json:"end_session_endpoint"`
}

// jwksMinRefresh bounds how often the cached key set is fetched again.
const jwksMinRefresh = 15 * time.Minute

// NewOIDCProvider derives the endpoints from the issuer, or discovers them
// when discovery is enabled. The key set cache refreshes in the background
// until ctx is done.
func NewOIDCProvider(ctx context.Context, config conf.OIDCConfiguration, client *http.Client) (*OIDCProvider, error) {
	if !config.Enabled() {
		return nil, errors.New("OIDC provider is not configured")
	}

	issuer := strings.TrimRight(config.IssuerURL, "/")
	p := &OIDCProvider{
		Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   issuer + "/authorize",
				TokenURL:  issuer + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: strings.Fields(config.Scope),
		},
		Issuer:  issuer,
		JWKSURL: issuer + "/.well-known/jwks.json",
		Logout:  issuer + "/logout",
		client:  client,
		jwks:    jwk.NewCache(ctx),
	}

	if config.DiscoveryEnabled {
		discovered, err := oidc.NewProvider(oidc.ClientContext(ctx, client), issuer)
		if err != nil {
			return nil, errors.Wrap(err, "error discovering OIDC provider")
		}

		endpoint := discovered.Endpoint()
		p.Endpoint.AuthURL = endpoint.AuthURL
		p.Endpoint.TokenURL = endpoint.TokenURL

		var extra discoveryClaims
		if err := discovered.Claims(&extra); err != nil {
			return nil, errors.Wrap(err, "error reading OIDC discovery document")
		}
		if extra.JWKSURL != "" {
			p.JWKSURL = extra.JWKSURL
		}
		if extra.EndSessionEndpoint != "" {
			p.Logout = extra.EndSessionEndpoint
		}
	}

	return p, nil
}

func (p *OIDCProvider) withRedirect(redirectURI string) *oauth2.Config {
	c := *p.Config
	c.RedirectURL = redirectURI
	return &c
}

// AuthCodeURL builds the authorization request URL with nonce and S256 PKCE
// challenge.
func (p *OIDCProvider) AuthCodeURL(redirectURI, state, nonce, codeVerifier string) string {
	return p.withRedirect(redirectURI).AuthCodeURL(state,
		oidc.Nonce(nonce),
		oauth2.S256ChallengeOption(codeVerifier),
	)
}

// ExchangeCode trades an authorization code for the raw ID token.
func (p *OIDCProvider) ExchangeCode(ctx context.Context, redirectURI, code, codeVerifier string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	token, err := p.withRedirect(redirectURI).Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return "", &TokenExchangeError{Detail: string(retrieveErr.Body), Err: err}
		}
		return "", &TokenExchangeError{Detail: err.Error(), Err: err}
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return "", ErrMissingIDToken
	}
	return idToken, nil
}

// ValidateIDToken verifies the signature against the provider's JWKS along
// with issuer, audience and expiry. Every failure is an *IDTokenError.
func (p *OIDCProvider) ValidateIDToken(ctx context.Context, idToken string) (*IDTokenClaims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(idToken, &IDTokenClaims{})
	if err != nil {
		return nil, idTokenError(IDTokenJWTError, "Token validation failed", err)
	}

	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, idTokenError(IDTokenMissingKID, "Token format is invalid", nil)
	}

	set, err := p.keySet(ctx)
	if err != nil {
		return nil, idTokenError(IDTokenJWKSFetchError, "Unable to retrieve authentication keys", err)
	}

	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, idTokenError(IDTokenKeyNotFound, "Authentication key validation failed", nil)
	}

	var publicKey rsa.PublicKey
	if err := key.Raw(&publicKey); err != nil {
		return nil, idTokenError(IDTokenKeyConversionError, "Authentication key processing failed", err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(p.Issuer),
		jwt.WithAudience(p.ClientID),
		jwt.WithExpirationRequired(),
	)

	claims := &IDTokenClaims{}
	if _, err := parser.ParseWithClaims(idToken, claims, func(*jwt.Token) (interface{}, error) {
		return &publicKey, nil
	}); err != nil {
		return nil, classifyIDTokenError(err)
	}

	return claims, nil
}

// keySet returns the cached key set, fetching it on first use.
func (p *OIDCProvider) keySet(ctx context.Context) (jwk.Set, error) {
	if !p.jwks.IsRegistered(p.JWKSURL) {
		if err := p.jwks.Register(p.JWKSURL, jwk.WithHTTPClient(p.client), jwk.WithMinRefreshInterval(jwksMinRefresh)); err != nil {
			return nil, err
		}
	}
	return p.jwks.Get(ctx, p.JWKSURL)
}

func classifyIDTokenError(err error) *IDTokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return idTokenError(IDTokenExpired, "Token has expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return idTokenError(IDTokenInvalidSignature, "Token signature verification failed", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return idTokenError(IDTokenInvalidIssuer, "Token issuer validation failed", err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return idTokenError(IDTokenInvalidAudience, "Token audience validation failed", err)
	case errors.Is(err, jwt.ErrTokenInvalidClaims), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return idTokenError(IDTokenInvalidClaims, "Token claims validation failed", err)
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenUnverifiable):
		return idTokenError(IDTokenJWTError, "Token validation failed", err)
	default:
		return idTokenError(IDTokenUnexpectedError, "Authentication processing failed", err)
	}
}

// LogoutURL returns the provider logout URL that sends the browser back to
// postLogoutRedirect.
func (p *OIDCProvider) LogoutURL(postLogoutRedirect, idTokenHint string) string {
	params := url.Values{}
	params.Set("post_logout_redirect_uri", postLogoutRedirect)
	if idTokenHint != "" {
		params.Set("id_token_hint", idTokenHint)
	}
	return p.Logout + "?" + params.Encode()
}
