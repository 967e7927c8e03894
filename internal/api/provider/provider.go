package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/funcsea/appbackend/internal/utilities"
)

// Claims are the profile claims this backend reads from an ID token.
type Claims struct {
	Nonce             string `json:"nonce,omitempty"`
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
}

// DisplayName picks the best available name: name, preferred_username,
// given and family name, then the local part of the email.
func (c *Claims) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	if full := strings.TrimSpace(c.GivenName + " " + c.FamilyName); full != "" {
		return full
	}
	return NameFromEmail(c.Email)
}

// NameFromEmail returns the part of email before the @.
func NameFromEmail(email string) string {
	if email == "" {
		return ""
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

// doJSONRequest sends body as JSON and returns the status and raw answer of
// any response, 2xx or not.
func doJSONRequest(ctx context.Context, client *http.Client, method, url string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer utilities.DrainAndClose(res.Body)

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, bodyBytes, nil
}

