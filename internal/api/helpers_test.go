package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funcsea/appbackend/internal/api/apierrors"
	"github.com/funcsea/appbackend/internal/conf"
)

func TestRetrieveRequestParams(t *testing.T) {
	type params struct {
		Name string `json:"name"`
	}

	cases := []struct {
		desc string
		body string
		code string
		name string
	}{
		{desc: "valid", body: `{"name":"x"}`, name: "x"},
		{desc: "empty body", body: ``, code: apierrors.ErrorCodeBadJSON},
		{desc: "malformed", body: `{"name":`, code: apierrors.ErrorCodeBadJSON},
		{desc: "wrong type", body: `{"name":1}`, code: apierrors.ErrorCodeBadJSON},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			var body io.Reader
			if c.body != "" {
				body = strings.NewReader(c.body)
			}
			req := httptest.NewRequest(http.MethodPost, "/", body)

			p := &params{}
			err := retrieveRequestParams(req, p)
			if c.code == "" {
				require.NoError(t, err)
				assert.Equal(t, c.name, p.Name)
				return
			}

			httpErr, ok := err.(*HTTPError)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadRequest, httpErr.HTTPStatus)
			assert.Equal(t, c.code, httpErr.ErrorCode)
		})
	}
}

func TestFrontendErrorURL(t *testing.T) {
	config := &conf.GlobalConfiguration{}
	config.API.FrontendURL = "https://app.example.com"

	assert.Equal(t, "https://app.example.com/auth/error?msg=Invalid+nonce", frontendErrorURL(config, "Invalid nonce"))
}
