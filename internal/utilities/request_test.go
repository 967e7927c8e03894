package utilities

import (
	"net/http"
	"net/http/httptest"
	tst "testing"

	"github.com/stretchr/testify/require"

	"github.com/funcsea/appbackend/internal/conf"
)

func TestGetIPAddress(t *tst.T) {
	examples := []func(r *http.Request) string{
		func(r *http.Request) string {
			r.Header = nil
			r.RemoteAddr = "127.0.0.1:8080"

			return "127.0.0.1"
		},

		func(r *http.Request) string {
			r.Header = nil
			r.RemoteAddr = "incorrect"

			return "incorrect"
		},

		func(r *http.Request) string {
			r.Header = make(http.Header)
			r.RemoteAddr = "[::1]:8080"

			return "::1"
		},

		func(r *http.Request) string {
			r.Header = make(http.Header)
			r.RemoteAddr = "127.0.0.1:8080"
			r.Header.Add("X-Forwarded-For", "127.0.0.2")

			return "127.0.0.2"
		},

		func(r *http.Request) string {
			r.Header = make(http.Header)
			r.RemoteAddr = "127.0.0.1:8080"
			r.Header.Add("X-Forwarded-For", "not-an-ip, 127.0.0.3")

			return "127.0.0.3"
		},
	}

	for _, example := range examples {
		req := &http.Request{}
		expected := example(req)

		require.Equal(t, expected, GetIPAddress(req))
	}
}

func TestBackendURL(t *tst.T) {
	config := &conf.GlobalConfiguration{}
	config.API.Port = "8000"
	config.API.Host = "0.0.0.0"

	cases := []struct {
		desc    string
		host    string
		headers map[string]string
		want    string
	}{
		{
			desc: "host header defaults to https",
			host: "api.example.com",
			want: "https://api.example.com",
		},
		{
			desc:    "forwarded host wins over host",
			host:    "internal:8000",
			headers: map[string]string{"X-Forwarded-Host": "public.example.com", "X-Forwarded-Proto": "http"},
			want:    "http://public.example.com",
		},
		{
			desc: "external domain wins over forwarded host",
			host: "internal:8000",
			headers: map[string]string{
				"mgx-external-domain": "app.example.com",
				"X-Forwarded-Host":    "public.example.com",
				"X-Forwarded-Proto":   "https, http",
			},
			want: "https://app.example.com",
		},
		{
			desc: "no host falls back to local address",
			want: "http://127.0.0.1:8000",
		},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *tst.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/login", nil)
			req.Host = c.host
			for k, v := range c.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, c.want, BackendURL(req, config))
		})
	}

	config.API.ExternalURL = "https://configured.example.com"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = ""
	require.Equal(t, "https://configured.example.com", BackendURL(req, config))
}
