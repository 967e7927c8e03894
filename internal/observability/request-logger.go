package observability

import (
	"fmt"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/funcsea/appbackend/internal/utilities"
)

// NewStructuredLogger logs one "request completed" line per request and
// makes a per-request entry available through GetLogEntry.
func NewStructuredLogger(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return chimiddleware.RequestLogger(&requestLogFormatter{logger: logger})
}

type requestLogFormatter struct {
	logger *logrus.Logger
}

func (f *requestLogFormatter) NewLogEntry(r *http.Request) chimiddleware.LogEntry {
	fields := logrus.Fields{
		"component":   "api",
		"method":      r.Method,
		"path":        r.URL.Path,
		"remote_addr": utilities.GetIPAddress(r),
	}
	if ref := r.Referer(); ref != "" {
		fields["referer"] = ref
	}
	if id := utilities.GetRequestID(r.Context()); id != "" {
		fields["request_id"] = id
	}

	entry := &requestLogEntry{FieldLogger: f.logger.WithFields(fields)}
	entry.Debug("request started")
	return entry
}

// requestLogEntry accumulates fields that handlers attach with
// LogEntrySetField.
type requestLogEntry struct {
	logrus.FieldLogger
}

func (e *requestLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	l := e.WithFields(logrus.Fields{
		"status":   status,
		"bytes":    bytes,
		"duration": elapsed.Nanoseconds(),
	})
	switch {
	case status >= http.StatusInternalServerError:
		l.Error("request completed")
	case status >= http.StatusBadRequest:
		l.Warn("request completed")
	default:
		l.Info("request completed")
	}
}

func (e *requestLogEntry) Panic(v interface{}, stack []byte) {
	e.WithFields(logrus.Fields{
		"panic": fmt.Sprintf("%+v", v),
		"stack": string(stack),
	}).Error("request panicked")
}

// GetLogEntry returns the request's entry, or a bare standard logger entry
// outside the logging middleware.
func GetLogEntry(r *http.Request) logrus.FieldLogger {
	if e, ok := chimiddleware.GetLogEntry(r).(*requestLogEntry); ok {
		return e.FieldLogger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// LogEntrySetField adds key to every later line logged for r.
func LogEntrySetField(r *http.Request, key string, value interface{}) {
	if e, ok := chimiddleware.GetLogEntry(r).(*requestLogEntry); ok {
		e.FieldLogger = e.WithField(key, value)
	}
}
