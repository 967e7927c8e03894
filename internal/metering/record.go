package metering

import (
	"github.com/sirupsen/logrus"
)

// LoginType represents the type of login method used
type LoginType string

// LoginType constants for consistent login analytics
const (
	LoginTypeOIDC     LoginType = "oidc"
	LoginTypePlatform LoginType = "platform_token"
)

// LoginData contains structured data for login events
type LoginData struct {
	// Provider is the issuer host that vouched for the user
	Provider string `json:"provider"`

	Extra map[string]interface{} `json:"extra,omitempty"`
}

var logger = logrus.StandardLogger().WithField("metering", true)

// RecordLogin emits one structured "Login" line per successful login.
func RecordLogin(loginType LoginType, userID string, data *LoginData) {
	fields := logrus.Fields{
		"action":       "login",
		"login_method": string(loginType),
		"user_id":      userID,
	}

	if data != nil {
		if data.Provider != "" {
			fields["provider"] = data.Provider
		}
		for key, value := range data.Extra {
			fields[key] = value
		}
	}

	logger.WithFields(fields).Info("Login")
}
