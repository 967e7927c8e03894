package observability

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const strippedUserAgent = "stripped"

// statusRecorder remembers the status code a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Flush keeps SSE streaming working behind the recorder.
func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// routeAttributes returns the matched chi pattern and its URL params. Requests
// that never reached the router are reported under their raw path.
func routeAttributes(r *http.Request) (attribute.KeyValue, []attribute.KeyValue) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.RoutePattern() == "" {
		return attribute.String("http.route", r.URL.Path), nil
	}

	params := make([]attribute.KeyValue, 0, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		if i < len(rctx.URLParams.Values) {
			params = append(params, attribute.String("http.route.param."+key, rctx.URLParams.Values[i]))
		}
	}
	return attribute.String("http.route", rctx.RoutePattern()), params
}

// RequestTracing wraps the router in an otelhttp span and counts status codes
// per route. It must run before chi resolves the route.
func RequestTracing() func(http.Handler) http.Handler {
	statusCodes, err := Meter(instrumentationName).Int64Counter(
		"http_status_codes",
		metric.WithDescription("Responses by route and status code"),
	)
	if err != nil {
		logrus.WithError(err).Error("unable to register http_status_codes counter")
	}

	return func(next http.Handler) http.Handler {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// restore the agent for handlers, it was hidden from otelhttp
			if ua := r.Header.Get("X-Original-User-Agent"); ua != "" {
				r.Header.Set("User-Agent", ua)
				r.Header.Del("X-Original-User-Agent")
			}

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			route, params := routeAttributes(r)
			span := trace.SpanFromContext(r.Context())
			span.SetAttributes(route)
			span.SetAttributes(params...)

			if statusCodes != nil {
				statusCodes.Add(r.Context(), 1, metric.WithAttributes(route, attribute.Int("code", rec.status)))
			}
		})

		traced := otelhttp.NewHandler(inner, "api")

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// otelhttp records User-Agent as a span attribute, keep its
			// cardinality down
			if ua := r.UserAgent(); ua != "" {
				r.Header.Set("X-Original-User-Agent", ua)
				r.Header.Set("User-Agent", strippedUserAgent)
			}
			traced.ServeHTTP(w, r)
		})
	}
}
