package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	// ErrPlatformUnreachable covers transport failures.
	ErrPlatformUnreachable = errors.New("Unable to verify platform token")
	// ErrPlatformInvalidResponse covers answers that are not JSON.
	ErrPlatformInvalidResponse = errors.New("Invalid response from platform token verification service")
	// ErrPlatformUnexpectedResponse covers JSON answers that are not an object.
	ErrPlatformUnexpectedResponse = errors.New("Unexpected response from platform token verification service")
)

// PlatformUser is the identity behind a verified platform token.
type PlatformUser struct {
	UserID   string
	Email    string
	Name     string
	Username string
}

type platformVerifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		UserID   json.RawMessage `json:"user_id"`
		Email    string          `json:"email"`
		Name     string          `json:"name"`
		Username string          `json:"username"`
	} `json:"data"`
}

// VerifyPlatformToken asks the identity provider who owns a platform token.
// A refused token is an *HTTPError carrying the status and message to relay.
func (p *OIDCProvider) VerifyPlatformToken(ctx context.Context, platformToken string) (*PlatformUser, error) {
	status, body, err := doJSONRequest(ctx, p.client, http.MethodPost, p.Issuer+"/platform/tokens/verify", map[string]string{
		"platform_token": platformToken,
	})
	if err != nil {
		return nil, errors.Wrap(ErrPlatformUnreachable, err.Error())
	}

	var generic interface{}
	if err := json.Unmarshal(body, &generic); err != nil {
		return nil, errors.Wrapf(ErrPlatformInvalidResponse, "status %d", status)
	}
	if _, ok := generic.(map[string]interface{}); !ok {
		return nil, errors.Wrapf(ErrPlatformUnexpectedResponse, "status %d", status)
	}

	var res platformVerifyResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, errors.Wrap(ErrPlatformUnexpectedResponse, err.Error())
	}

	// a refusal keeps the upstream status, a 200 refusal becomes a 401
	if status != http.StatusOK || !res.Success {
		code, message := status, res.Message
		if code == http.StatusOK {
			code = http.StatusUnauthorized
		}
		if message == "" {
			message = "Platform token verification failed"
		}
		return nil, httpError(code, "%s", message)
	}

	return &PlatformUser{
		UserID:   rawID(res.Data.UserID),
		Email:    res.Data.Email,
		Name:     res.Data.Name,
		Username: res.Data.Username,
	}, nil
}

// rawID accepts both string and numeric user ids.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return fmt.Sprintf("%s", raw)
}
