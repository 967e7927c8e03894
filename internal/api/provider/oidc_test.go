package provider

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/security"
	"github.com/funcsea/appbackend/internal/utilities"
)

type OIDCProviderTestSuite struct {
	suite.Suite

	server   *httptest.Server
	key      *rsa.PrivateKey
	provider *OIDCProvider

	tokenForm   url.Values
	idToken     string
	jwksFetches atomic.Int32
}

func TestOIDCProvider(t *testing.T) {
	suite.Run(t, &OIDCProviderTestSuite{})
}

func (ts *OIDCProviderTestSuite) SetupTest() {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(ts.T(), err)
	ts.key = key

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(ts.T(), err)

	set := jwk.NewSet()
	rsaJWK, err := jwk.FromRaw(&key.PublicKey)
	require.NoError(ts.T(), err)
	require.NoError(ts.T(), rsaJWK.Set(jwk.KeyIDKey, "rsa-1"))
	require.NoError(ts.T(), set.AddKey(rsaJWK))

	ecJWK, err := jwk.FromRaw(&ecKey.PublicKey)
	require.NoError(ts.T(), err)
	require.NoError(ts.T(), ecJWK.Set(jwk.KeyIDKey, "ec-1"))
	require.NoError(ts.T(), set.AddKey(ecJWK))

	jwks, err := json.Marshal(set)
	require.NoError(ts.T(), err)

	mux := http.NewServeMux()
	ts.jwksFetches.Store(0)
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		ts.jwksFetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		ts.tokenForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") == "bad-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		body := map[string]interface{}{
			"access_token": "at",
			"token_type":   "Bearer",
		}
		if ts.idToken != "" {
			body["id_token"] = ts.idToken
		}
		_ = json.NewEncoder(w).Encode(body)
	})
	ts.server = httptest.NewServer(mux)

	ts.provider, err = NewOIDCProvider(context.Background(), conf.OIDCConfiguration{
		IssuerURL:    ts.server.URL,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		Scope:        "openid profile email",
	}, utilities.NewHTTPClient(5*time.Second))
	require.NoError(ts.T(), err)
}

func (ts *OIDCProviderTestSuite) TearDownTest() {
	ts.server.Close()
}

func (ts *OIDCProviderTestSuite) sign(kid string, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(ts.key)
	require.NoError(ts.T(), err)
	return signed
}

func (ts *OIDCProviderTestSuite) validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   ts.server.URL,
		"aud":   "client-1",
		"sub":   "user-1",
		"nonce": "nonce-1",
		"email": "user@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
}

func (ts *OIDCProviderTestSuite) TestAuthCodeURL() {
	pkce := security.NewPKCE()
	raw := ts.provider.AuthCodeURL("https://api.example.com/api/v1/auth/callback", "state-1", "nonce-1", pkce.Verifier)

	u, err := url.Parse(raw)
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), "/authorize", u.Path)

	q := u.Query()
	assert.Equal(ts.T(), "client-1", q.Get("client_id"))
	assert.Equal(ts.T(), "code", q.Get("response_type"))
	assert.Equal(ts.T(), "openid profile email", q.Get("scope"))
	assert.Equal(ts.T(), "https://api.example.com/api/v1/auth/callback", q.Get("redirect_uri"))
	assert.Equal(ts.T(), "state-1", q.Get("state"))
	assert.Equal(ts.T(), "nonce-1", q.Get("nonce"))
	assert.Equal(ts.T(), pkce.Challenge, q.Get("code_challenge"))
	assert.Equal(ts.T(), "S256", q.Get("code_challenge_method"))
}

func (ts *OIDCProviderTestSuite) TestExchangeCode() {
	ts.idToken = ts.sign("rsa-1", ts.validClaims())

	idToken, err := ts.provider.ExchangeCode(context.Background(), "https://api.example.com/cb", "good-code", "verifier-1")
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), ts.idToken, idToken)

	assert.Equal(ts.T(), "authorization_code", ts.tokenForm.Get("grant_type"))
	assert.Equal(ts.T(), "good-code", ts.tokenForm.Get("code"))
	assert.Equal(ts.T(), "https://api.example.com/cb", ts.tokenForm.Get("redirect_uri"))
	assert.Equal(ts.T(), "client-1", ts.tokenForm.Get("client_id"))
	assert.Equal(ts.T(), "secret-1", ts.tokenForm.Get("client_secret"))
	assert.Equal(ts.T(), "verifier-1", ts.tokenForm.Get("code_verifier"))
}

func (ts *OIDCProviderTestSuite) TestExchangeCodeFailures() {
	_, err := ts.provider.ExchangeCode(context.Background(), "https://api.example.com/cb", "bad-code", "v")
	var exchangeErr *TokenExchangeError
	require.ErrorAs(ts.T(), err, &exchangeErr)
	assert.Contains(ts.T(), exchangeErr.Error(), "Token exchange failed: ")
	assert.Contains(ts.T(), exchangeErr.Error(), "invalid_grant")

	ts.idToken = ""
	_, err = ts.provider.ExchangeCode(context.Background(), "https://api.example.com/cb", "good-code", "v")
	require.ErrorIs(ts.T(), err, ErrMissingIDToken)
}

func (ts *OIDCProviderTestSuite) TestValidateIDToken() {
	claims, err := ts.provider.ValidateIDToken(context.Background(), ts.sign("rsa-1", ts.validClaims()))
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), "user-1", claims.Subject)
	assert.Equal(ts.T(), "nonce-1", claims.Nonce)
	assert.Equal(ts.T(), "user@example.com", claims.Email)
	assert.Equal(ts.T(), "user", claims.DisplayName())
}

func (ts *OIDCProviderTestSuite) TestValidateIDTokenFailures() {
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(ts.T(), err)
	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, ts.validClaims())
	forged.Header["kid"] = "rsa-1"
	forgedToken, err := forged.SignedString(otherKey)
	require.NoError(ts.T(), err)

	expired := ts.validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	wrongIssuer := ts.validClaims()
	wrongIssuer["iss"] = "https://evil.example.com"

	wrongAudience := ts.validClaims()
	wrongAudience["aud"] = "someone-else"

	noExpiry := ts.validClaims()
	delete(noExpiry, "exp")

	cases := []struct {
		desc     string
		token    string
		expected string
	}{
		{"garbage", "not-a-jwt", IDTokenJWTError},
		{"missing kid", ts.sign("", ts.validClaims()), IDTokenMissingKID},
		{"unknown kid", ts.sign("nope", ts.validClaims()), IDTokenKeyNotFound},
		{"non-RSA key", ts.sign("ec-1", ts.validClaims()), IDTokenKeyConversionError},
		{"expired", ts.sign("rsa-1", expired), IDTokenExpired},
		{"bad signature", forgedToken, IDTokenInvalidSignature},
		{"wrong issuer", ts.sign("rsa-1", wrongIssuer), IDTokenInvalidIssuer},
		{"wrong audience", ts.sign("rsa-1", wrongAudience), IDTokenInvalidAudience},
		{"no expiry", ts.sign("rsa-1", noExpiry), IDTokenInvalidClaims},
	}

	for _, c := range cases {
		ts.Run(c.desc, func() {
			_, err := ts.provider.ValidateIDToken(context.Background(), c.token)
			var idErr *IDTokenError
			require.ErrorAs(ts.T(), err, &idErr)
			assert.Equal(ts.T(), c.expected, idErr.Type)
			assert.NotEmpty(ts.T(), idErr.Message)
		})
	}
}

func (ts *OIDCProviderTestSuite) TestJWKSFetchError() {
	ts.provider.JWKSURL = ts.server.URL + "/missing"
	_, err := ts.provider.ValidateIDToken(context.Background(), ts.sign("rsa-1", ts.validClaims()))
	var idErr *IDTokenError
	require.ErrorAs(ts.T(), err, &idErr)
	assert.Equal(ts.T(), IDTokenJWKSFetchError, idErr.Type)
}

func (ts *OIDCProviderTestSuite) TestKeySetFetchedOnce() {
	for i := 0; i < 3; i++ {
		_, err := ts.provider.ValidateIDToken(context.Background(), ts.sign("rsa-1", ts.validClaims()))
		require.NoError(ts.T(), err)
	}
	assert.Equal(ts.T(), int32(1), ts.jwksFetches.Load())
}

func (ts *OIDCProviderTestSuite) TestLogoutURL() {
	raw := ts.provider.LogoutURL("http://localhost:3000/logout-callback", "hint")
	u, err := url.Parse(raw)
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), "/logout", u.Path)
	assert.Equal(ts.T(), "http://localhost:3000/logout-callback", u.Query().Get("post_logout_redirect_uri"))
	assert.Equal(ts.T(), "hint", u.Query().Get("id_token_hint"))

	raw = ts.provider.LogoutURL("http://localhost:3000/logout-callback", "")
	assert.NotContains(ts.T(), raw, "id_token_hint")
}

func TestDiscovery(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/.well-known/openid-configuration", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 server.URL,
			"authorization_endpoint": server.URL + "/oauth/authorize",
			"token_endpoint":         server.URL + "/oauth/token",
			"jwks_uri":               server.URL + "/keys",
			"end_session_endpoint":   server.URL + "/oauth/logout",
		})
	}))
	defer server.Close()

	p, err := NewOIDCProvider(context.Background(), conf.OIDCConfiguration{
		IssuerURL:        server.URL,
		ClientID:         "client-1",
		DiscoveryEnabled: true,
	}, utilities.NewHTTPClient(5*time.Second))
	require.NoError(t, err)

	assert.Equal(t, server.URL+"/oauth/authorize", p.Endpoint.AuthURL)
	assert.Equal(t, server.URL+"/oauth/token", p.Endpoint.TokenURL)
	assert.Equal(t, server.URL+"/keys", p.JWKSURL)
	assert.Equal(t, server.URL+"/oauth/logout", p.Logout)
}

func TestNewOIDCProviderNotConfigured(t *testing.T) {
	_, err := NewOIDCProvider(context.Background(), conf.OIDCConfiguration{}, http.DefaultClient)
	require.Error(t, err)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Full", (&Claims{Name: "Full", PreferredUsername: "pref"}).DisplayName())
	assert.Equal(t, "pref", (&Claims{PreferredUsername: "pref"}).DisplayName())
	assert.Equal(t, "Jane Doe", (&Claims{GivenName: "Jane", FamilyName: "Doe"}).DisplayName())
	assert.Equal(t, "jane", (&Claims{Email: "jane@example.com"}).DisplayName())
	assert.Equal(t, "", (&Claims{}).DisplayName())
}
