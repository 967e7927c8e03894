package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/cors"
	"github.com/sebest/xff"
	"github.com/sirupsen/logrus"

	"github.com/funcsea/appbackend/internal/api/apierrors"
	"github.com/funcsea/appbackend/internal/api/provider"
	"github.com/funcsea/appbackend/internal/conf"
	"github.com/funcsea/appbackend/internal/models"
	"github.com/funcsea/appbackend/internal/observability"
	"github.com/funcsea/appbackend/internal/storage"
	"github.com/funcsea/appbackend/internal/utilities"
)

const (
	defaultVersion = "unknown version"
	serviceName    = "appbackend"
)

// API is the main REST API
type API struct {
	handler http.Handler
	db      *storage.Manager
	config  *conf.GlobalConfiguration
	version string

	httpClient   *http.Client
	limiterOpts  *LimiterOptions
	providerOpts *ProviderOptions

	// ctx bounds background work of long lived clients.
	ctx        context.Context
	oidcMu     sync.Mutex
	oidc       *provider.OIDCProvider
	oidcConfig conf.OIDCConfiguration
}

// NewAPI instantiates a new REST API
func NewAPI(globalConfig *conf.GlobalConfiguration, db *storage.Manager, opt ...Option) *API {
	return NewAPIWithVersion(context.Background(), globalConfig, db, defaultVersion, opt...)
}

// NewAPIWithVersion creates a new REST API using the specified version
func NewAPIWithVersion(ctx context.Context, globalConfig *conf.GlobalConfiguration, db *storage.Manager, version string, opt ...Option) *API {
	api := &API{
		config:     globalConfig,
		db:         db,
		version:    version,
		ctx:        ctx,
		httpClient: utilities.NewHTTPClient(globalConfig.API.HTTPClientTimeout),
	}

	for _, o := range opt {
		o.apply(api)
	}
	if api.limiterOpts == nil {
		lo, err := NewLimiterOptions(globalConfig)
		if err != nil {
			logrus.WithError(err).Warn("unable to create rate limiters, rate limiting is disabled")
			lo = &LimiterOptions{}
		}
		api.limiterOpts = lo
	}
	if api.providerOpts == nil {
		api.providerOpts = &ProviderOptions{}
	}

	xffmw, _ := xff.Default()
	logger := observability.NewStructuredLogger(logrus.StandardLogger())

	r := newRouter()
	r.Use(addRequestID(globalConfig))

	// request tracing should be added only when tracing or metrics is enabled
	if globalConfig.Tracing.Enabled || globalConfig.Metrics.Enabled {
		r.UseBypass(observability.RequestTracing())
	}

	r.UseBypass(xffmw.Handler)
	r.UseBypass(logger)
	r.UseBypass(recoverer)

	if globalConfig.DB.CleanupEnabled {
		cleanup := models.NewCleanup(globalConfig)
		r.UseBypass(api.databaseCleanup(cleanup))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) error {
		return notFoundError(apierrors.ErrorCodeNotFound, "Not Found")
	})

	r.Get("/", api.Root)
	r.Get("/health", api.HealthCheck)
	r.Get("/database/health", api.DatabaseHealthCheck)

	r.Route("/api/v1", func(r *router) {
		r.Group(func(r *router) {
			r.UseBypass(timeoutMiddleware(globalConfig.API.MaxRequestDuration))

			r.Route("/auth", func(r *router) {
				r.With(api.limitHandler(api.limiterOpts.Auth)).Get("/login", api.OIDCLogin)
				r.Get("/callback", api.OIDCCallback)
				r.With(api.limitHandler(api.limiterOpts.Auth)).Post("/token/exchange", api.PlatformTokenExchange)
				r.With(api.requireAuthentication).Get("/me", api.Me)
				r.With(api.optionalAuthentication).Get("/logout", api.Logout)
			})

			r.Route("/users", func(r *router) {
				r.Use(api.requireAuthentication)

				r.Get("/profile", api.UserGet)
				r.Put("/profile", api.UserUpdate)
			})

			r.Route("/admin/settings", func(r *router) {
				r.Use(api.requireAuthentication)
				r.Use(api.requireAdmin)

				r.Get("/", api.SettingsGet)
				r.Route("/{env_type}", func(r *router) {
					r.Use(api.loadEnvFile)

					r.Post("/", api.SettingCreate)
					r.Post("/{key}", api.SettingCreate)
					r.Put("/{key}", api.SettingUpdate)
					r.Delete("/{key}", api.SettingDelete)
				})
			})

			r.Route("/storage", func(r *router) {
				r.Use(api.requireAuthentication)

				r.With(api.requireAdmin).Post("/create-bucket", api.StorageCreateBucket)
				r.Get("/list-buckets", api.StorageListBuckets)
				r.Get("/list-objects", api.StorageListObjects)
				r.Get("/get-object-info", api.StorageGetObjectInfo)
				r.Post("/rename-object", api.StorageRenameObject)
				r.Delete("/delete-object", api.StorageDeleteObject)
				r.Post("/delete-object", api.StorageDeleteObject)
				r.Post("/upload-url", api.StorageUploadURL)
				r.Post("/download-url", api.StorageDownloadURL)
			})

			r.Route("/payment", func(r *router) {
				r.Use(api.requireAuthentication)

				r.Post("/checkout", api.PaymentCheckoutCreate)
				r.Get("/checkout/{session_id}", api.PaymentCheckoutGet)
			})
		})

		r.Route("/aihub", func(r *router) {
			r.Use(api.requireAuthentication)

			// streamed responses cannot go through the buffering timeout middleware
			r.Post("/gentxt", api.AIGenerateText)
			r.WithBypass(timeoutMiddleware(globalConfig.API.MaxRequestDuration)).Post("/genimg", api.AIGenerateImage)
		})
	})

	corsHandler := cors.New(cors.Options{
		// echo any origin, "*" is not allowed together with credentials
		AllowOriginFunc:  func(string) bool { return true },
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   globalConfig.CORS.AllAllowedHeaders([]string{"Accept", "Authorization", "Content-Type", "X-Client-IP", "X-Request-ID"}),
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})

	api.handler = corsHandler.Handler(r)
	return api
}

// Handler returns the fully wrapped HTTP handler, e.g. for the Lambda adapter.
func (a *API) Handler() http.Handler {
	return a.handler
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}
