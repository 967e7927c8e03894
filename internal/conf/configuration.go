package conf

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"

	"github.com/funcsea/appbackend/internal/crypto"
)

const (
	defaultStateTTL  = 10 * time.Minute
	defaultJWTExpiry = 60
)

// DBConfiguration holds all the database related configuration.
type DBConfiguration struct {
	Driver string `json:"driver"`
	URL    string `json:"url" envconfig:"DATABASE_URL"`

	MaxPoolSize       int           `json:"max_pool_size" envconfig:"DB_MAX_POOL_SIZE" default:"10"`
	MaxIdlePoolSize   int           `json:"max_idle_pool_size" envconfig:"DB_MAX_IDLE_POOL_SIZE" default:"5"`
	ConnMaxLifetime   time.Duration `json:"conn_max_lifetime,omitempty" envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime   time.Duration `json:"conn_max_idle_time,omitempty" envconfig:"DB_CONN_MAX_IDLE_TIME"`
	HealthCheckPeriod time.Duration `json:"health_check_period" envconfig:"DB_HEALTH_CHECK_PERIOD"`

	// SchemaRepair adds columns declared by the models but missing from
	// the live tables. Only additive changes are made.
	SchemaRepair   bool   `json:"schema_repair" envconfig:"DB_SCHEMA_REPAIR" default:"false"`
	CleanupEnabled bool   `json:"cleanup_enabled" envconfig:"DB_CLEANUP_ENABLED" default:"false"`
	MockDataDir    string `json:"mock_data_dir" envconfig:"MOCK_DATA_DIR" default:"mock_data"`
}

func (c *DBConfiguration) Validate() error {
	if c.MaxPoolSize < 0 || c.MaxIdlePoolSize < 0 {
		return errors.New("conf: database pool sizes must not be negative")
	}
	return nil
}

// Configured reports whether a database URL was provided.
func (c *DBConfiguration) Configured() bool {
	return strings.TrimSpace(c.URL) != ""
}

// JWTConfiguration holds the configuration of the application tokens.
type JWTConfiguration struct {
	Secret     string `json:"secret" envconfig:"JWT_SECRET_KEY"`
	Algorithm  string `json:"algorithm" envconfig:"JWT_ALGORITHM" default:"HS256"`
	ExpMinutes int    `json:"exp_minutes" envconfig:"JWT_EXPIRE_MINUTES" default:"60"`
	Issuer     string `json:"issuer" envconfig:"JWT_ISSUER"`
	Audience   string `json:"audience" envconfig:"JWT_AUDIENCE"`
}

func (c *JWTConfiguration) Validate() error {
	switch c.Algorithm {
	case "HS256", "HS384", "HS512":
		return nil
	default:
		return fmt.Errorf("conf: unsupported JWT algorithm %q, only HS256, HS384 and HS512 are supported", c.Algorithm)
	}
}

// Expiry returns the configured token lifetime.
func (c *JWTConfiguration) Expiry() time.Duration {
	return time.Duration(c.ExpMinutes) * time.Minute
}

// OIDCConfiguration holds the identity provider settings.
type OIDCConfiguration struct {
	IssuerURL        string        `json:"issuer_url" envconfig:"OIDC_ISSUER_URL"`
	ClientID         string        `json:"client_id" envconfig:"OIDC_CLIENT_ID"`
	ClientSecret     string        `json:"-" envconfig:"OIDC_CLIENT_SECRET"`
	Scope            string        `json:"scope" envconfig:"OIDC_SCOPE" default:"openid profile email"`
	DiscoveryEnabled bool          `json:"discovery_enabled" envconfig:"OIDC_DISCOVERY_ENABLED" default:"false"`
	StateTTL         time.Duration `json:"state_ttl" envconfig:"OIDC_STATE_TTL" default:"10m"`
}

func (c *OIDCConfiguration) Validate() error {
	if c.IssuerURL == "" {
		return nil
	}
	if _, err := url.ParseRequestURI(c.IssuerURL); err != nil {
		return errors.Wrap(err, "conf: invalid OIDC_ISSUER_URL")
	}
	return nil
}

// Enabled reports whether enough OIDC settings are present to start a login.
func (c *OIDCConfiguration) Enabled() bool {
	return c.IssuerURL != "" && c.ClientID != ""
}

type AdminConfiguration struct {
	UserID string `json:"user_id" envconfig:"ADMIN_USER_ID"`
	Email  string `json:"email" envconfig:"ADMIN_USER_EMAIL"`
}

type APIConfiguration struct {
	Host               string        `envconfig:"HOST" default:"0.0.0.0"`
	Port               string        `envconfig:"PORT" default:"8000"`
	ExternalURL        string        `json:"external_url" envconfig:"API_EXTERNAL_URL"`
	BackendURL         string        `json:"backend_url" envconfig:"BACKEND_URL"`
	FrontendURL        string        `json:"frontend_url" envconfig:"FRONTEND_URL" default:"http://localhost:3000"`
	RequestIDHeader    string        `envconfig:"REQUEST_ID_HEADER"`
	MaxRequestDuration time.Duration `json:"max_request_duration" envconfig:"API_MAX_REQUEST_DURATION" default:"60s"`
	HTTPClientTimeout  time.Duration `json:"http_client_timeout" envconfig:"HTTP_CLIENT_TIMEOUT" default:"30s"`
	Environment        string        `json:"environment" envconfig:"ENVIRONMENT" default:"development"`
}

func (a *APIConfiguration) Validate() error {
	for _, u := range []string{a.ExternalURL, a.FrontendURL} {
		if u == "" {
			continue
		}
		if _, err := url.ParseRequestURI(u); err != nil {
			return err
		}
	}
	return nil
}

type OSSConfiguration struct {
	ServiceURL string `json:"service_url" envconfig:"OSS_SERVICE_URL"`
	APIKey     string `json:"-" envconfig:"OSS_API_KEY"`
}

func (c *OSSConfiguration) Validate() error {
	if c.ServiceURL == "" || c.APIKey == "" {
		return errors.New("storage: OSS_SERVICE_URL and OSS_API_KEY are required")
	}
	return nil
}

type S3Configuration struct {
	Endpoint        string `json:"endpoint" envconfig:"S3_ENDPOINT"`
	Region          string `json:"region" envconfig:"S3_REGION" default:"us-east-1"`
	AccessKeyID     string `json:"-" envconfig:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"-" envconfig:"S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `json:"use_path_style" envconfig:"S3_USE_PATH_STYLE" default:"false"`
}

func (c *S3Configuration) Validate() error {
	if c.Region == "" {
		return errors.New("storage: S3_REGION is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("storage: S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
	}
	return nil
}

type MinIOConfiguration struct {
	Endpoint  string `json:"endpoint" envconfig:"MINIO_ENDPOINT"`
	AccessKey string `json:"-" envconfig:"MINIO_ACCESS_KEY"`
	SecretKey string `json:"-" envconfig:"MINIO_SECRET_KEY"`
	UseSSL    bool   `json:"use_ssl" envconfig:"MINIO_USE_SSL" default:"true"`
	Region    string `json:"region" envconfig:"MINIO_REGION" default:"us-east-1"`
}

func (c *MinIOConfiguration) Validate() error {
	if c.Endpoint == "" || c.AccessKey == "" || c.SecretKey == "" {
		return errors.New("storage: MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required")
	}
	return nil
}

// StorageConfiguration selects and configures the object storage backend.
type StorageConfiguration struct {
	Provider  string        `json:"provider" envconfig:"STORAGE_PROVIDER" default:"oss"`
	URLExpiry time.Duration `json:"url_expiry" envconfig:"STORAGE_URL_EXPIRY" default:"1h"`

	OSS   OSSConfiguration   `json:"oss"`
	S3    S3Configuration    `json:"s3"`
	MinIO MinIOConfiguration `json:"minio"`
}

type PaymentConfiguration struct {
	StripeSecretKey string `json:"-" envconfig:"STRIPE_SECRET_KEY"`
	// StripeAPIURL overrides the Stripe API base, e.g. for stripe-mock.
	StripeAPIURL string `json:"stripe_api_url" envconfig:"STRIPE_API_URL"`
}

func (c *PaymentConfiguration) Enabled() bool {
	return c.StripeSecretKey != ""
}

type AIConfiguration struct {
	BaseURL      string `json:"base_url" envconfig:"APP_AI_BASE_URL"`
	APIKey       string `json:"-" envconfig:"APP_AI_KEY"`
	TextModel    string `json:"text_model" envconfig:"APP_AI_TEXT_MODEL" default:"deepseek-v3.2"`
	ImageModel   string `json:"image_model" envconfig:"APP_AI_IMAGE_MODEL" default:"gemini-2.5-flash-image"`
	MaxImageSize int64  `json:"max_image_size" envconfig:"APP_AI_MAX_IMAGE_BYTES" default:"10485760"`
}

func (c *AIConfiguration) Enabled() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

type RateLimitConfiguration struct {
	Backend  string `json:"backend" envconfig:"RATE_LIMIT_BACKEND" default:"memory"`
	Auth     Rate   `json:"auth" envconfig:"RATE_LIMIT_AUTH" default:"30/1m"`
	Header   string `json:"header" envconfig:"RATE_LIMIT_HEADER"`
	RedisURL string `json:"-" envconfig:"REDIS_URL"`
}

func (c *RateLimitConfiguration) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "redis":
		if c.RedisURL == "" {
			return errors.New("conf: REDIS_URL is required when RATE_LIMIT_BACKEND=redis")
		}
		return nil
	default:
		return fmt.Errorf("conf: unknown rate limit backend %q", c.Backend)
	}
}

type SettingsConfiguration struct {
	BackendEnvFile  string `json:"backend_env_file" envconfig:"SETTINGS_BACKEND_ENV_FILE" default:".env"`
	FrontendEnvFile string `json:"frontend_env_file" envconfig:"SETTINGS_FRONTEND_ENV_FILE" default:"../frontend/.env"`
}

type LambdaConfiguration struct {
	Enabled      bool   `json:"enabled" envconfig:"LAMBDA_ENABLED" default:"false"`
	FunctionName string `json:"function_name" envconfig:"AWS_LAMBDA_FUNCTION_NAME"`
	StaticDir    string `json:"static_dir" envconfig:"STATIC_DIR" default:"static"`

	// APIBaseURL is the only value handed to the browser through /api/config.
	APIBaseURL        string               `json:"api_base_url" envconfig:"VITE_API_BASE_URL"`
	AllowedDomains    []string             `json:"allowed_domains" envconfig:"ALLOWED_DOMAINS"`
	AllowedDomainsMap map[string]glob.Glob `json:"-" ignored:"true"`
}

// CompileAllowedDomains parses ALLOWED_DOMAINS. Entries are globs over
// dot-separated labels, e.g. *.example.com.
func (c *LambdaConfiguration) CompileAllowedDomains() error {
	c.AllowedDomainsMap = make(map[string]glob.Glob, len(c.AllowedDomains))
	for _, domain := range c.AllowedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		g, err := glob.Compile(domain, '.')
		if err != nil {
			return errors.Wrapf(err, "conf: invalid ALLOWED_DOMAINS entry %q", domain)
		}
		c.AllowedDomainsMap[domain] = g
	}
	return nil
}

// DomainAllowed reports whether host is one of the allowed domains or a
// subdomain of one.
func (c *LambdaConfiguration) DomainAllowed(host string) bool {
	host = strings.ToLower(host)
	for domain, g := range c.AllowedDomainsMap {
		if g.Match(host) || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

type CORSConfiguration struct {
	AllowedHeaders []string `json:"allowed_headers" envconfig:"CORS_ALLOWED_HEADERS"`
}

func (c *CORSConfiguration) AllAllowedHeaders(defaults []string) []string {
	set := make(map[string]bool)
	for _, header := range defaults {
		set[header] = true
	}

	var result []string
	result = append(result, defaults...)

	for _, header := range c.AllowedHeaders {
		if !set[header] {
			result = append(result, header)
		}

		set[header] = true
	}

	return result
}

// GlobalConfiguration holds all the configuration that applies to all instances.
type GlobalConfiguration struct {
	API       APIConfiguration
	DB        DBConfiguration
	JWT       JWTConfiguration       `json:"jwt"`
	OIDC      OIDCConfiguration      `json:"oidc"`
	Admin     AdminConfiguration     `json:"admin"`
	Storage   StorageConfiguration   `json:"storage"`
	Payment   PaymentConfiguration   `json:"payment"`
	AI        AIConfiguration        `json:"ai"`
	RateLimit RateLimitConfiguration `json:"rate_limit"`
	Settings  SettingsConfiguration  `json:"settings"`
	Lambda    LambdaConfiguration    `json:"lambda"`
	CORS      CORSConfiguration      `json:"cors"`
	Logging   LoggingConfig          `envconfig:"LOG"`
	Tracing   TracingConfig
	Metrics   MetricsConfig

	MaskKey string `json:"-" envconfig:"MASK_KEY" default:"Mgx@FunctionSea"`
}

func loadEnvironment(filename string) error {
	var err error
	if filename != "" {
		err = godotenv.Overload(filename)
	} else {
		err = godotenv.Load()
		// handle if .env file does not exist, this is OK
		if os.IsNotExist(err) {
			return nil
		}
	}
	return err
}

// LoadGlobal loads configuration from file and environment variables.
func LoadGlobal(filename string) (*GlobalConfiguration, error) {
	if err := loadEnvironment(filename); err != nil {
		return nil, err
	}

	config := new(GlobalConfiguration)

	// no prefix: every setting is read under its plain name, e.g. JWT_SECRET_KEY
	if err := envconfig.Process("", config); err != nil {
		return nil, err
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyDefaults sets defaults for a GlobalConfiguration
func (config *GlobalConfiguration) ApplyDefaults() error {
	if config.JWT.Algorithm == "" {
		config.JWT.Algorithm = "HS256"
	}

	if config.JWT.ExpMinutes <= 0 {
		config.JWT.ExpMinutes = defaultJWTExpiry
	}

	if config.OIDC.StateTTL <= 0 {
		config.OIDC.StateTTL = defaultStateTTL
	}

	config.OIDC.IssuerURL = strings.TrimRight(config.OIDC.IssuerURL, "/")
	config.API.FrontendURL = strings.TrimRight(config.API.FrontendURL, "/")

	if config.API.ExternalURL == "" && config.API.BackendURL != "" {
		config.API.ExternalURL = config.API.BackendURL
	}
	config.API.ExternalURL = strings.TrimRight(config.API.ExternalURL, "/")

	if config.Lambda.FunctionName != "" {
		config.Lambda.Enabled = true
	}

	if config.Lambda.Enabled {
		// every invocation runs in its own sandbox, a pool would only
		// hold on to idle connections between invocations
		config.DB.MaxPoolSize = 1
		config.DB.MaxIdlePoolSize = 0
	}

	if err := config.Lambda.CompileAllowedDomains(); err != nil {
		return err
	}

	if config.Storage.Provider == "" {
		config.Storage.Provider = "oss"
	}

	if err := config.unmaskSecrets(); err != nil {
		return err
	}

	return nil
}

func (config *GlobalConfiguration) unmaskSecrets() error {
	masker, err := crypto.NewMasker(config.MaskKey)
	if err != nil {
		return err
	}

	secrets := map[string]*string{
		"APP_AI_KEY":        &config.AI.APIKey,
		"OSS_API_KEY":       &config.Storage.OSS.APIKey,
		"STRIPE_SECRET_KEY": &config.Payment.StripeSecretKey,
	}

	for name, value := range secrets {
		plain, err := masker.Unmask(*value)
		if err != nil {
			return errors.Wrapf(err, "conf: unable to unmask %s", name)
		}
		*value = plain
	}

	return nil
}

// Validate validates all of configuration.
func (c *GlobalConfiguration) Validate() error {
	validatables := []interface {
		Validate() error
	}{
		&c.API,
		&c.DB,
		&c.JWT,
		&c.OIDC,
		&c.RateLimit,
		&c.Tracing,
		&c.Metrics,
	}

	for _, validatable := range validatables {
		if err := validatable.Validate(); err != nil {
			return err
		}
	}

	return nil
}
