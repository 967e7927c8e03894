package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/funcsea/appbackend/internal/api/apierrors"
	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/utilities"
)

func addRequestID(globalConfig *conf.GlobalConfiguration) middlewareHandler {
	return func(w http.ResponseWriter, r *http.Request) (context.Context, error) {
		id := ""
		if globalConfig.API.RequestIDHeader != "" {
			id = r.Header.Get(globalConfig.API.RequestIDHeader)
		}
		if id == "" {
			uid := uuid.Must(uuid.NewV4())
			id = uid.String()
		}

		w.Header().Set("X-Request-ID", id)
		ctx := r.Context()
		ctx = utilities.WithRequestID(ctx, id)
		return ctx, nil
	}
}

func sendJSON(w http.ResponseWriter, status int, obj interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	b, err := json.Marshal(obj)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("Error encoding json response: %v", obj))
	}
	w.WriteHeader(status)
	_, err = w.Write(b)
	return err
}

// retrieveRequestParams decodes the JSON body into params. The body is read
// through utilities.GetBodyBytes so it can be read again later.
func retrieveRequestParams[A any](r *http.Request, params *A) error {
	body, err := utilities.GetBodyBytes(r)
	if err != nil {
		return internalServerError("Could not read body into byte slice").WithInternalError(err)
	}
	if len(body) == 0 {
		return badRequestError(apierrors.ErrorCodeBadJSON, "Request body is required")
	}
	if err := json.Unmarshal(body, params); err != nil {
		return badRequestError(apierrors.ErrorCodeBadJSON, "Could not parse request body as JSON: %v", err).WithInternalError(err)
	}
	return nil
}

// frontendErrorURL is where browser flows land when they fail.
func frontendErrorURL(config *conf.GlobalConfiguration, msg string) string {
	return config.API.FrontendURL + "/auth/error?msg=" + url.QueryEscape(msg)
}
