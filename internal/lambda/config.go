package lambda

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

const defaultAPIBaseURL = "http://127.0.0.1:8000"

var botUserAgents = []string{"bot", "crawler", "spider", "scraper", "curl", "wget"}

var builtinRefererHosts = []string{"localhost", "127.0.0.1"}

// frontendConfig answers /api/config with the values the browser bundle
// reads at runtime. Nothing but API_BASE_URL leaves the function.
func (h *Handler) frontendConfig(in *invocation) *response {
	if reason := h.rejectConfigRequest(in); reason != "" {
		logrus.WithFields(logrus.Fields{
			"component": "lambda",
			"reason":    reason,
		}).Info("config request rejected")
		return jsonResponse(http.StatusForbidden, map[string]string{
			"error":   "Access denied",
			"message": "Invalid request",
		})
	}

	res := jsonResponse(http.StatusOK, map[string]string{
		"API_BASE_URL": h.apiBaseURL(in),
	})
	res.Headers["Cache-Control"] = "public, max-age=300"
	res.Headers["X-Content-Type-Options"] = "nosniff"
	res.Headers["X-Frame-Options"] = "DENY"
	return res
}

func (h *Handler) rejectConfigRequest(in *invocation) string {
	ua := strings.ToLower(in.headers["user-agent"])
	for _, pattern := range botUserAgents {
		if strings.Contains(ua, pattern) {
			return "suspicious user agent"
		}
	}

	referer := in.headers["referer"]
	if referer == "" {
		return ""
	}

	u, err := url.Parse(referer)
	if err != nil || u.Hostname() == "" {
		return "invalid referer"
	}
	if !h.refererAllowed(u.Hostname(), in.host()) {
		return "invalid referer"
	}
	return ""
}

func (h *Handler) refererAllowed(refererHost, requestHost string) bool {
	refererHost = strings.ToLower(refererHost)

	if requestHost != "" {
		if host, _, err := net.SplitHostPort(requestHost); err == nil {
			requestHost = host
		}
		if strings.EqualFold(refererHost, requestHost) {
			return true
		}
	}

	for _, host := range builtinRefererHosts {
		if refererHost == host {
			return true
		}
	}
	return h.config.Lambda.DomainAllowed(refererHost)
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (h *Handler) apiBaseURL(in *invocation) string {
	if u := h.config.Lambda.APIBaseURL; u != "" {
		if isHTTPURL(u) {
			return u
		}
		logrus.WithField("component", "lambda").Warnf("ignoring VITE_API_BASE_URL %q, not an http(s) URL", u)
	}
	if origin := in.origin(); origin != "" {
		return origin
	}
	return defaultAPIBaseURL
}
