package utilities

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/funcsea/appbackend/internal/conf"
)

// GetIPAddress returns the real IP address of the HTTP request. It parses the
// X-Forwarded-For header.
func GetIPAddress(r *http.Request) string {
	if r.Header != nil {
		xForwardedFor := r.Header.Get("X-Forwarded-For")
		if xForwardedFor != "" {
			ips := strings.Split(xForwardedFor, ",")
			for i := range ips {
				ips[i] = strings.TrimSpace(ips[i])
			}

			for _, ip := range ips {
				if ip != "" {
					parsed := net.ParseIP(ip)
					if parsed == nil {
						continue
					}

					return parsed.String()
				}
			}
		}
	}

	ipPort := r.RemoteAddr
	ip, _, err := net.SplitHostPort(ipPort)
	if err != nil {
		return ipPort
	}

	return ip
}

// GetBodyBytes reads the whole request body properly into a byte array.
func GetBodyBytes(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}

	originalBody := req.Body
	defer SafeClose(originalBody)

	buf, err := io.ReadAll(originalBody)
	if err != nil {
		return nil, err
	}

	req.Body = io.NopCloser(bytes.NewReader(buf))

	return buf, nil
}

// BackendURL returns the public base URL of this backend as seen by the
// client. The host is taken from mgx-external-domain, X-Forwarded-Host and
// Host in that order, the scheme from X-Forwarded-Proto.
func BackendURL(r *http.Request, config *conf.GlobalConfiguration) string {
	host := firstNonEmpty(
		r.Header.Get("mgx-external-domain"),
		r.Header.Get("X-Forwarded-Host"),
		r.Host,
	)
	if host == "" {
		return DefaultBackendURL(config)
	}

	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}

	return scheme + "://" + host
}

// DefaultBackendURL is used when the request carries no host information.
func DefaultBackendURL(config *conf.GlobalConfiguration) string {
	if config.API.ExternalURL != "" {
		return config.API.ExternalURL
	}

	host := config.API.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, config.API.Port)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
