package metering

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLogin(t *testing.T) {
	hook := test.NewLocal(logrus.StandardLogger())
	defer hook.Reset()

	RecordLogin(LoginTypeOIDC, "user-1", &LoginData{
		Provider: "idp.example.com",
		Extra:    map[string]interface{}{"role": "user"},
	})

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Login", entry.Message)
	assert.Equal(t, logrus.Fields{
		"metering":     true,
		"action":       "login",
		"login_method": "oidc",
		"user_id":      "user-1",
		"provider":     "idp.example.com",
		"role":         "user",
	}, entry.Data)
}

func TestRecordLoginWithoutData(t *testing.T) {
	hook := test.NewLocal(logrus.StandardLogger())
	defer hook.Reset()

	RecordLogin(LoginTypePlatform, "admin-sub", nil)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "platform_token", entry.Data["login_method"])
	assert.NotContains(t, entry.Data, "provider")
}
