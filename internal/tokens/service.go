package tokens

import (
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/models"
)

var (
	ErrMissingSecret = errors.New("Authentication service is misconfigured")
	ErrTokenExpired  = errors.New("Token has expired")
	ErrInvalidToken  = errors.New("Invalid authentication token")
)

// AccessTokenClaims is a struct thats used for JWT claims
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	LastLogin string `json:"last_login,omitempty"`
}

// AccessTokenResponse is what a successful login hands to the frontend.
type AccessTokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"` // Bearer
	ExpiresAt int64  `json:"expires_at"`
}

// AsRedirectURL encodes the response as the URL fragment of redirectURL.
func (r *AccessTokenResponse) AsRedirectURL(redirectURL string) string {
	params := url.Values{}
	params.Set("token", r.Token)
	params.Set("expires_at", strconv.FormatInt(r.ExpiresAt, 10))
	params.Set("token_type", r.TokenType)

	return redirectURL + "#" + params.Encode()
}

func signingMethod(config *conf.JWTConfiguration) jwt.SigningMethod {
	switch config.Algorithm {
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

// NewAccessTokenClaims builds the claims for user, expiring at expiresAt.
func NewAccessTokenClaims(config *conf.JWTConfiguration, user *models.User, issuedAt, expiresAt time.Time) *AccessTokenClaims {
	claims := &AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    config.Issuer,
		},
		Email: user.Email,
		Role:  user.Role,
		Name:  user.GetName(),
	}
	if config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{config.Audience}
	}
	if user.LastLogin != nil {
		claims.LastLogin = user.LastLogin.UTC().Format(time.RFC3339)
	}
	return claims
}

// SignJWT signs claims with the configured HMAC secret.
func SignJWT(config *conf.JWTConfiguration, claims jwt.Claims) (string, error) {
	if config.Secret == "" {
		return "", ErrMissingSecret
	}

	// this serializes the aud claim to a string
	jwt.MarshalSingleStringAsArray = false

	token := jwt.NewWithClaims(signingMethod(config), claims)
	signed, err := token.SignedString([]byte(config.Secret))
	if err != nil {
		return "", errors.Wrap(err, "error signing access token")
	}
	return signed, nil
}

// IssueAccessToken signs an application token for user. A non-positive ttl
// uses the configured expiry.
func IssueAccessToken(config *conf.JWTConfiguration, user *models.User, ttl time.Duration) (string, time.Time, error) {
	if config.Secret == "" {
		return "", time.Time{}, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = config.Expiry()
	}
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}

	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(ttl)

	signed, err := SignJWT(config, NewAccessTokenClaims(config, user, issuedAt, expiresAt))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IssueAccessTokenResponse is IssueAccessToken packaged for a redirect.
func IssueAccessTokenResponse(config *conf.JWTConfiguration, user *models.User) (*AccessTokenResponse, error) {
	token, expiresAt, err := IssueAccessToken(config, user, 0)
	if err != nil {
		return nil, err
	}
	return &AccessTokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt.Unix(),
	}, nil
}

// ParseAccessToken verifies token and returns its claims. The result is
// always one of ErrMissingSecret, ErrTokenExpired or ErrInvalidToken on
// failure.
func ParseAccessToken(config *conf.JWTConfiguration, token string) (*AccessTokenClaims, error) {
	if config.Secret == "" {
		return nil, ErrMissingSecret
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod(config).Alg()}),
		jwt.WithExpirationRequired(),
	}
	if config.Issuer != "" {
		options = append(options, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		options = append(options, jwt.WithAudience(config.Audience))
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if claims.Role == "" {
		claims.Role = models.RoleUser
	}

	return claims, nil
}
