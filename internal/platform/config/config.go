package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultBasePath            = "/api/v1"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultShutdownTimeout     = 15 * time.Second
	defaultAuthProvider        = AuthProviderFirebase
	defaultSessionIssuer       = "northline-auth"
	defaultRoleClaim           = "role"
	defaultVerifyTimeout       = 5 * time.Second
	defaultStorageDriver       = StorageDriverFirestore
	defaultTrackingPrefix      = "NL"
	defaultTrackingCounter     = "order_track"
	defaultDefaultPageSize     = 10
	defaultMaxPageSize         = 100
	defaultCreatePerMinute     = 30
	defaultSecurityEnvironment = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer      = "https://accounts.google.com"
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyInterval = time.Hour
	defaultIdempotencyBatch    = 200
	defaultSecretsLocalFile    = ".secrets.local"
)

// Supported identity providers.
const (
	AuthProviderFirebase = "firebase"
	AuthProviderSession  = "session"
)

// Supported repository backends.
const (
	StorageDriverFirestore = "firestore"
	StorageDriverMemory    = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Storage     StorageConfig
	Auth        AuthConfig
	Orders      OrdersConfig
	RateLimits  RateLimitConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
	Secrets     SecretsConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string
	BasePath        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig selects the zap level.
type LogConfig struct {
	Level string
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig names the topics order events and notifications go to. Empty topics disable publishing.
type PubSubConfig struct {
	ProjectID          string
	OrderEventsTopic   string
	NotificationsTopic string
}

// StorageConfig selects the repository backend.
type StorageConfig struct {
	Driver string
}

// AuthConfig controls how end-user bearer tokens are verified.
type AuthConfig struct {
	Provider      string
	SessionSecret string
	SessionIssuer string
	PolicyFile    string
	RoleClaim     string
	VerifyTimeout time.Duration
}

// OrdersConfig holds order lifecycle tunables.
type OrdersConfig struct {
	TimeZone        string
	Location        *time.Location
	DayStart        time.Duration
	TransitionsFile string
	TrackingPrefix  string
	TrackingCounter string
	// LogSameDriverReason keeps the reassignment log entry when a driver is re-sent with a reason.
	LogSameDriverReason bool
	DefaultPageSize     int
	MaxPageSize         int
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	CreateOrderPerMinute int
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification on internal routes.
type OIDCConfig struct {
	JWKSURL   string
	Audience  string
	Audiences map[string]string
	Issuers   []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretsConfig configures secret reference resolution.
type SecretsConfig struct {
	ProjectID string
	LocalFile string
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects explicit values which take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks config fields (for example "Auth.SessionSecret") as mandatory secrets.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

func newOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Load assembles configuration from defaults, the .env file, the process
// environment and the explicit map, in increasing precedence.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newOptions(opts)
	values, err := environment(options)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			BasePath:        stringWithDefault(lookup, "API_SERVER_BASE_PATH", defaultBasePath),
			ReadTimeout:     durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Log: LogConfig{
			Level: stringWithDefault(lookup, "LOG_LEVEL", "info"),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:          stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			OrderEventsTopic:   stringWithDefault(lookup, "API_PUBSUB_ORDER_EVENTS_TOPIC", ""),
			NotificationsTopic: stringWithDefault(lookup, "API_PUBSUB_NOTIFICATIONS_TOPIC", ""),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(stringWithDefault(lookup, "API_STORAGE_DRIVER", defaultStorageDriver)),
		},
		Auth: AuthConfig{
			Provider:      strings.ToLower(stringWithDefault(lookup, "API_AUTH_PROVIDER", defaultAuthProvider)),
			SessionSecret: stringWithDefault(lookup, "API_AUTH_SESSION_SECRET", ""),
			SessionIssuer: stringWithDefault(lookup, "API_AUTH_SESSION_ISSUER", defaultSessionIssuer),
			PolicyFile:    stringWithDefault(lookup, "API_AUTH_POLICY_FILE", ""),
			RoleClaim:     stringWithDefault(lookup, "API_AUTH_ROLE_CLAIM", defaultRoleClaim),
			VerifyTimeout: durationWithDefault(lookup, "API_AUTH_VERIFY_TIMEOUT", defaultVerifyTimeout),
		},
		Orders: OrdersConfig{
			TimeZone:            stringWithDefault(lookup, "API_ORDERS_TIMEZONE", "Local"),
			DayStart:            durationWithDefault(lookup, "API_ORDERS_DAY_START", 0),
			TransitionsFile:     stringWithDefault(lookup, "API_ORDERS_TRANSITIONS_FILE", ""),
			TrackingPrefix:      stringWithDefault(lookup, "API_ORDERS_TRACKING_PREFIX", defaultTrackingPrefix),
			TrackingCounter:     stringWithDefault(lookup, "API_ORDERS_TRACKING_COUNTER", defaultTrackingCounter),
			LogSameDriverReason: boolWithDefault(lookup, "API_ORDERS_LOG_SAME_DRIVER_REASON", true),
			DefaultPageSize:     intWithDefault(lookup, "API_ORDERS_DEFAULT_PAGE_SIZE", defaultDefaultPageSize),
			MaxPageSize:         intWithDefault(lookup, "API_ORDERS_MAX_PAGE_SIZE", defaultMaxPageSize),
		},
		RateLimits: RateLimitConfig{
			CreateOrderPerMinute: intWithDefault(lookup, "API_RATELIMIT_CREATE_ORDER_PER_MIN", defaultCreatePerMinute),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:   stringWithDefault(lookup, "API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:  stringWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCE", ""),
				Audiences: mapWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCES"),
				Issuers:   csvWithDefault(lookup, "API_SECURITY_OIDC_ISSUERS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatch),
		},
		Secrets: SecretsConfig{
			ProjectID: stringWithDefault(lookup, "API_SECRETS_PROJECT_ID", ""),
			LocalFile: stringWithDefault(lookup, "API_SECRETS_LOCAL_FILE", defaultSecretsLocalFile),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}
	if cfg.Security.OIDC.Audience == "" {
		cfg.Security.OIDC.Audience = cfg.Security.OIDC.Audiences[cfg.Security.Environment]
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Auth.SessionSecret", &cfg.Auth.SessionSecret},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	var locErr error
	cfg.Orders.Location, locErr = time.LoadLocation(cfg.Orders.TimeZone)

	if err := validate(cfg, locErr); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func validate(cfg Config, locErr error) error {
	var invalid []string

	if strings.TrimSpace(cfg.Server.Port) == "" {
		invalid = append(invalid, "Server.Port")
	}
	if !strings.HasPrefix(cfg.Server.BasePath, "/") {
		invalid = append(invalid, "Server.BasePath")
	}
	switch cfg.Storage.Driver {
	case StorageDriverFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	case StorageDriverMemory:
	default:
		invalid = append(invalid, "Storage.Driver")
	}
	switch cfg.Auth.Provider {
	case AuthProviderFirebase:
		if cfg.Firebase.ProjectID == "" {
			invalid = append(invalid, "Firebase.ProjectID")
		}
	case AuthProviderSession:
		if strings.TrimSpace(cfg.Auth.SessionSecret) == "" {
			invalid = append(invalid, "Auth.SessionSecret")
		}
	default:
		invalid = append(invalid, "Auth.Provider")
	}
	if locErr != nil || cfg.Orders.Location == nil {
		invalid = append(invalid, "Orders.TimeZone")
	}
	if cfg.Orders.DayStart < 0 || cfg.Orders.DayStart >= 24*time.Hour {
		invalid = append(invalid, "Orders.DayStart")
	}
	if strings.TrimSpace(cfg.Orders.TrackingCounter) == "" {
		invalid = append(invalid, "Orders.TrackingCounter")
	}
	if cfg.Orders.DefaultPageSize <= 0 || cfg.Orders.MaxPageSize < cfg.Orders.DefaultPageSize {
		invalid = append(invalid, "Orders.PageSize")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		invalid = append(invalid, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		invalid = append(invalid, "Idempotency.CleanupBatchSize")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing or invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// EnvironmentValues returns the merged environment with the same precedence as Load.
// cmd/api uses it to build the secret fetcher before the full config exists.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	return environment(newOptions(opts))
}

func environment(options loaderOptions) (map[string]string, error) {
	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}
