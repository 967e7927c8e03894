package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/funcsea/appbackend/internal/api/apierrors"
	"github.com/funcsea/appbackend/internal/conf"
)

const (
	envTypeBackend  = "backend"
	envTypeFrontend = "frontend"

	envFileKey = contextKey("env_file")
)

var backendSettingDescriptions = map[string]string{
	"DATABASE_URL":       "Database connection string",
	"STRIPE_SECRET_KEY":  "Stripe secret key",
	"STRIPE_SUCCESS_URL": "Payment success callback URL",
	"STRIPE_CANCEL_URL":  "Payment cancellation callback URL",
	"ALLOWED_DOMAINS":    "Allowed domains",
	"OIDC_ISSUER_URL":    "OIDC issuer URL",
	"OIDC_CLIENT_ID":     "OIDC client ID",
	"OIDC_CLIENT_SECRET": "OIDC client secret",
	"OIDC_SCOPE":         "OIDC scopes",
	"HOST":               "Server host address",
	"PORT":               "Server port",
	"FRONTEND_URL":       "Frontend URL",
	"JWT_SECRET_KEY":     "JWT signing secret key",
	"JWT_ALGORITHM":      "JWT signing algorithm",
	"JWT_EXPIRE_MINUTES": "JWT expiration time (minutes)",
	"ADMIN_USER_ID":      "Admin user ID",
	"ADMIN_USER_EMAIL":   "Admin user email",
	"APP_AI_BASE_URL":    "AI service base URL",
	"APP_AI_KEY":         "AI service API key",
	"OSS_SERVICE_URL":    "Object storage service URL",
	"OSS_API_KEY":        "Object storage API key",
	"RATE_LIMIT_BACKEND": "Rate limit backend (memory or redis)",
	"REDIS_URL":          "Redis connection URL",
}

var frontendSettingDescriptions = map[string]string{
	"VITE_API_BASE_URL": "Base API URL",
	"VITE_FRONTEND_URL": "Frontend URL",
}

type SettingVariable struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

type SettingsResponse struct {
	BackendVars  map[string]SettingVariable `json:"backend_vars"`
	FrontendVars map[string]SettingVariable `json:"frontend_vars"`
}

type SettingParams struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SettingMessageResponse struct {
	Message string `json:"message"`
}

type envFileContext struct {
	file         *conf.EnvFile
	descriptions map[string]string
}

func (a *API) envFile(envType string) (*envFileContext, bool) {
	switch envType {
	case envTypeBackend:
		return &envFileContext{
			file:         conf.OpenEnvFile(a.config.Settings.BackendEnvFile),
			descriptions: backendSettingDescriptions,
		}, true
	case envTypeFrontend:
		return &envFileContext{
			file:         conf.OpenEnvFile(a.config.Settings.FrontendEnvFile),
			descriptions: frontendSettingDescriptions,
		}, true
	default:
		return nil, false
	}
}

func readSettings(ef *envFileContext) (map[string]SettingVariable, error) {
	vars, err := ef.file.Read()
	if err != nil {
		return nil, err
	}

	out := make(map[string]SettingVariable, len(vars))
	for key, value := range vars {
		out[key] = SettingVariable{
			Key:         key,
			Value:       value,
			Description: ef.descriptions[key],
		}
	}
	return out, nil
}

func (a *API) loadEnvFile(w http.ResponseWriter, r *http.Request) (context.Context, error) {
	ef, ok := a.envFile(chi.URLParam(r, "env_type"))
	if !ok {
		return nil, notFoundError(apierrors.ErrorCodeSettingNotFound, "Unknown configuration type")
	}
	return context.WithValue(r.Context(), envFileKey, ef), nil
}

func getEnvFile(ctx context.Context) *envFileContext {
	obj := ctx.Value(envFileKey)
	if obj == nil {
		return nil
	}
	return obj.(*envFileContext)
}

func settingKey(r *http.Request, params *SettingParams) (string, error) {
	key := chi.URLParam(r, "key")
	if key == "" {
		key = params.Key
	}
	if !conf.ValidEnvKey(key) {
		return "", badRequestError(apierrors.ErrorCodeValidationFailed, "Invalid configuration key '%s'", key)
	}
	return key, nil
}

// SettingsGet lists the backend and frontend dotenv variables.
func (a *API) SettingsGet(w http.ResponseWriter, r *http.Request) error {
	backend, _ := a.envFile(envTypeBackend)
	frontend, _ := a.envFile(envTypeFrontend)

	backendVars, err := readSettings(backend)
	if err != nil {
		return internalServerError("Failed to read configuration").WithInternalError(err)
	}
	frontendVars, err := readSettings(frontend)
	if err != nil {
		return internalServerError("Failed to read configuration").WithInternalError(err)
	}

	return sendJSON(w, http.StatusOK, SettingsResponse{
		BackendVars:  backendVars,
		FrontendVars: frontendVars,
	})
}

func (a *API) writeSetting(w http.ResponseWriter, r *http.Request, verb string) error {
	ef := getEnvFile(r.Context())

	params := &SettingParams{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}

	key, err := settingKey(r, params)
	if err != nil {
		return err
	}

	if err := ef.file.Set(key, params.Value); err != nil {
		return internalServerError("Failed to update configuration").WithInternalError(err)
	}

	return sendJSON(w, http.StatusOK, SettingMessageResponse{
		Message: "Configuration item '" + key + "' " + verb + ", restart required to take effect.",
	})
}

// SettingCreate creates or overwrites a variable.
func (a *API) SettingCreate(w http.ResponseWriter, r *http.Request) error {
	return a.writeSetting(w, r, "created")
}

// SettingUpdate upserts a variable.
func (a *API) SettingUpdate(w http.ResponseWriter, r *http.Request) error {
	return a.writeSetting(w, r, "updated")
}

// SettingDelete removes a variable.
func (a *API) SettingDelete(w http.ResponseWriter, r *http.Request) error {
	ef := getEnvFile(r.Context())

	key, err := settingKey(r, &SettingParams{})
	if err != nil {
		return err
	}

	found, err := ef.file.Delete(key)
	if err != nil {
		return internalServerError("Failed to delete configuration").WithInternalError(err)
	}
	if !found {
		return notFoundError(apierrors.ErrorCodeSettingNotFound, "Configuration item '%s' does not exist", key)
	}

	return sendJSON(w, http.StatusOK, SettingMessageResponse{
		Message: "Configuration item '" + key + "' deleted, restart required to take effect.",
	})
}
