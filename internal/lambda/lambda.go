// Package lambda routes raw AWS Lambda invocations either to the API handler
// or to the bundled frontend build.
package lambda

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/funcsea/appbackend/internal/conf"
)

const eventVersionV2 = "2.0"

// StartupFunc prepares the services the API needs. It runs before the first
// proxied request and again on the next one if it failed.
type StartupFunc func(ctx context.Context) error

// Handler implements the aws-lambda-go Handler interface.
type Handler struct {
	config  *conf.GlobalConfiguration
	static  *staticSite
	startup StartupFunc

	proxyV1 *httpadapter.HandlerAdapter
	proxyV2 *httpadapter.HandlerAdapterV2

	mu      sync.Mutex
	started bool
}

// New wraps api for Lambda. startup may be nil.
func New(config *conf.GlobalConfiguration, api http.Handler, startup StartupFunc) *Handler {
	return &Handler{
		config:  config,
		static:  newStaticSite(config.Lambda.StaticDir),
		startup: startup,
		proxyV1: httpadapter.New(api),
		proxyV2: httpadapter.NewV2(api),
	}
}

// Start blocks serving invocations until ctx is done or the runtime exits.
func (h *Handler) Start(ctx context.Context) {
	awslambda.StartWithOptions(h, awslambda.WithContext(ctx))
}

// invocation is the part of an API Gateway event the router looks at.
type invocation struct {
	v2      bool
	path    string
	headers map[string]string

	rawV1 events.APIGatewayProxyRequest
	rawV2 events.APIGatewayV2HTTPRequest
}

// origin is the scheme and host the client used, e.g. https://app.example.com.
func (in *invocation) origin() string {
	host := in.headers["x-forwarded-host"]
	if host == "" {
		host = in.headers["host"]
	}
	if host == "" {
		return ""
	}

	proto := in.headers["x-forwarded-proto"]
	if proto == "" {
		proto = "https"
	}
	return proto + "://" + host
}

func (in *invocation) host() string {
	if h := in.headers["x-forwarded-host"]; h != "" {
		return h
	}
	return in.headers["host"]
}

func parseInvocation(payload []byte) (*invocation, error) {
	var probe struct {
		Version    string `json:"version"`
		HTTPMethod string `json:"httpMethod"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, errors.Wrap(err, "decoding event")
	}

	in := &invocation{path: "/", headers: map[string]string{}}
	var headers map[string]string

	switch {
	case probe.Version == eventVersionV2:
		in.v2 = true
		if err := json.Unmarshal(payload, &in.rawV2); err != nil {
			return nil, errors.Wrap(err, "decoding API Gateway v2 event")
		}
		in.path = in.rawV2.RawPath
		headers = in.rawV2.Headers
	case probe.HTTPMethod != "":
		if err := json.Unmarshal(payload, &in.rawV1); err != nil {
			return nil, errors.Wrap(err, "decoding API Gateway v1 event")
		}
		in.path = in.rawV1.Path
		headers = in.rawV1.Headers
	}

	for k, v := range headers {
		in.headers[strings.ToLower(k)] = v
	}

	if p, err := url.PathUnescape(in.path); err == nil {
		in.path = p
	}
	if !strings.HasPrefix(in.path, "/") {
		in.path = "/" + in.path
	}

	return in, nil
}

// Invoke routes one event and returns the encoded response event.
func (h *Handler) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	in, err := parseInvocation(payload)
	if err != nil {
		logrus.WithError(err).Warn("unable to decode lambda event, serving frontend")
		in = &invocation{path: "/", headers: map[string]string{}}
	}

	log := logrus.WithFields(logrus.Fields{
		"component": "lambda",
		"path":      in.path,
		"v2":        in.v2,
	})

	res, proxied, err := h.route(ctx, in)
	if err != nil {
		log.WithError(err).Error("lambda invocation failed")
		res = jsonResponse(http.StatusInternalServerError, map[string]string{
			"error":   err.Error(),
			"message": "Internal server error",
		})
	}

	if proxied != nil {
		return json.Marshal(proxied)
	}
	return json.Marshal(res.encode(in.v2))
}

// route returns either a locally built response or an already encoded proxy
// response.
func (h *Handler) route(ctx context.Context, in *invocation) (*response, interface{}, error) {
	path := in.path

	if strings.Contains(path, "..") {
		return textResponse(http.StatusBadRequest, "Invalid path"), nil, nil
	}

	switch {
	case path == "/api/config":
		return h.frontendConfig(in), nil, nil
	case strings.HasPrefix(path, "/api/v1/"), path == "/health":
		proxied, err := h.proxy(ctx, in)
		return nil, proxied, err
	case strings.HasPrefix(path, "/database"):
		return jsonResponse(http.StatusNotFound, map[string]string{"error": "Not found"}), nil, nil
	case path == "/sitemap.xml":
		return h.static.document(path, "application/xml", in.origin()), nil, nil
	case path == "/robots.txt":
		return h.static.document(path, "text/plain; charset=utf-8", in.origin()), nil, nil
	case isStaticAsset(path):
		return h.static.file(path), nil, nil
	case isSEOPath(path):
		if res := h.static.seoPage(path, in.origin()); res != nil {
			return res, nil, nil
		}
	}

	return h.static.spa(), nil, nil
}

func (h *Handler) ensureStarted(ctx context.Context) error {
	if h.startup == nil {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil
	}
	if err := h.startup(ctx); err != nil {
		return errors.Wrap(err, "initializing services")
	}
	h.started = true
	return nil
}

func (h *Handler) proxy(ctx context.Context, in *invocation) (interface{}, error) {
	if err := h.ensureStarted(ctx); err != nil {
		return nil, err
	}

	if in.v2 {
		res, err := h.proxyV2.ProxyWithContext(ctx, in.rawV2)
		if err != nil {
			return nil, errors.Wrap(err, "proxying API Gateway v2 request")
		}
		return res, nil
	}

	res, err := h.proxyV1.ProxyWithContext(ctx, in.rawV1)
	if err != nil {
		return nil, errors.Wrap(err, "proxying API Gateway v1 request")
	}
	return res, nil
}
