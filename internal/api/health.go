package api

import (
	"net/http"

	"github.com/funcsea/appbackend/internal/observability"
)

type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

type HealthCheckResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Name    string `json:"name"`
}

type DatabaseHealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Detail  string `json:"detail,omitempty"`
}

func (a *API) Root(w http.ResponseWriter, r *http.Request) error {
	return sendJSON(w, http.StatusOK, RootResponse{
		Message: "Welcome to the backend API",
		Version: a.version,
	})
}

// HealthCheck endpoint indicates if the api service is available
func (a *API) HealthCheck(w http.ResponseWriter, r *http.Request) error {
	return sendJSON(w, http.StatusOK, HealthCheckResponse{
		Status:  "healthy",
		Version: a.version,
		Name:    serviceName,
	})
}

// DatabaseHealthCheck connects to the database if needed and pings it.
func (a *API) DatabaseHealthCheck(w http.ResponseWriter, r *http.Request) error {
	if err := a.db.Health(r.Context()); err != nil {
		observability.GetLogEntry(r).WithError(err).Warn("database health check failed")
		return sendJSON(w, http.StatusServiceUnavailable, DatabaseHealthResponse{
			Status:  "unhealthy",
			Service: "database",
			Detail:  err.Error(),
		})
	}

	return sendJSON(w, http.StatusOK, DatabaseHealthResponse{
		Status:  "healthy",
		Service: "database",
	})
}
