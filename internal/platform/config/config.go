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
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultEnvironment         = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer          = "https://accounts.google.com"
	defaultPartnerClaim        = "partnerId"
	defaultNotificationsTopic  = "service-request-notifications"
	defaultDispatchTimeout     = 10 * time.Second
	defaultCurrency            = "LKR"
	defaultOrderNumberAttempts = 5
	defaultMaxBodyBytes        = 64 * 1024
	defaultCreatePerMinute     = 30
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyInterval = time.Hour
	defaultIdempotencyBatch    = 200
	defaultSecretsFallbackFile = ".secrets.local"
	defaultLogLevel            = "info"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	PubSub        PubSubConfig
	Auth          AuthConfig
	Secrets       SecretsConfig
	Notifications NotificationConfig
	Requests      RequestConfig
	Idempotency   IdempotencyConfig
	Observability ObservabilityConfig
	Build         BuildConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
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

// PubSubConfig points the notification publisher at a topic.
type PubSubConfig struct {
	ProjectID          string
	NotificationsTopic string
	EmulatorHost       string
}

// AuthConfig groups end-user claim names and service-to-service OIDC verification.
type AuthConfig struct {
	PartnerClaim string
	OIDC         OIDCConfig
}

// OIDCConfig controls Google-signed token verification for internal callers.
type OIDCConfig struct {
	JWKSURL       string
	Audience      string
	Issuers       []string
	// AllowedEmails restricts internal callers to these service accounts. Empty allows any verified caller.
	AllowedEmails []string
}

// SecretsConfig configures the Secret Manager fetcher.
type SecretsConfig struct {
	Environment    string
	DefaultProject string
	FallbackFile   string
	Required       []string
}

// NotificationConfig controls lifecycle notification dispatch.
type NotificationConfig struct {
	SigningSecret   string
	DispatchTimeout time.Duration
}

// RequestConfig tunes service request handling.
type RequestConfig struct {
	Currency            string
	OrderNumberAttempts int
	MaxBodyBytes        int64
	CreatePerMinute     int
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// ObservabilityConfig controls logging and Cloud Trace correlation.
type ObservabilityConfig struct {
	LogLevel       string
	TraceProjectID string
}

// BuildConfig carries build metadata surfaced by health endpoints.
type BuildConfig struct {
	Version   string
	CommitSHA string
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

// WithEnvFile overrides the .env file path used for local overrides. An empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map that takes precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "Notifications.SigningSecret") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// Load assembles the application configuration from defaults, the dotenv file, the process
// environment, explicit overrides and Secret Manager references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	lookup, err := newLookup(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
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
			NotificationsTopic: stringWithDefault(lookup, "API_PUBSUB_NOTIFICATIONS_TOPIC", defaultNotificationsTopic),
			EmulatorHost:       stringWithDefault(lookup, "API_PUBSUB_EMULATOR_HOST", ""),
		},
		Auth: AuthConfig{
			PartnerClaim: stringWithDefault(lookup, "API_AUTH_PARTNER_CLAIM", defaultPartnerClaim),
			OIDC: OIDCConfig{
				JWKSURL:       stringWithDefault(lookup, "API_AUTH_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:      stringWithDefault(lookup, "API_AUTH_OIDC_AUDIENCE", ""),
				Issuers:       csvWithDefault(lookup, "API_AUTH_OIDC_ISSUERS"),
				AllowedEmails: csvWithDefault(lookup, "API_AUTH_OIDC_ALLOWED_EMAILS"),
			},
		},
		Secrets: SecretsConfig{
			Environment:    strings.ToLower(stringWithDefault(lookup, "API_SECRETS_ENVIRONMENT", defaultEnvironment)),
			DefaultProject: stringWithDefault(lookup, "API_SECRETS_DEFAULT_PROJECT", ""),
			FallbackFile:   stringWithDefault(lookup, "API_SECRETS_FALLBACK_FILE", defaultSecretsFallbackFile),
			Required:       csvWithDefault(lookup, "API_SECRETS_REQUIRED"),
		},
		Notifications: NotificationConfig{
			SigningSecret:   stringWithDefault(lookup, "API_NOTIFICATIONS_SIGNING_SECRET", ""),
			DispatchTimeout: durationWithDefault(lookup, "API_NOTIFICATIONS_DISPATCH_TIMEOUT", defaultDispatchTimeout),
		},
		Requests: RequestConfig{
			Currency:            strings.ToUpper(stringWithDefault(lookup, "API_REQUESTS_CURRENCY", defaultCurrency)),
			OrderNumberAttempts: intWithDefault(lookup, "API_REQUESTS_ORDER_NUMBER_ATTEMPTS", defaultOrderNumberAttempts),
			MaxBodyBytes:        int64(intWithDefault(lookup, "API_REQUESTS_MAX_BODY_BYTES", defaultMaxBodyBytes)),
			CreatePerMinute:     intWithDefault(lookup, "API_REQUESTS_CREATE_PER_MIN", defaultCreatePerMinute),
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatch),
		},
		Observability: ObservabilityConfig{
			LogLevel:       strings.ToLower(stringWithDefault(lookup, "API_OBSERVABILITY_LOG_LEVEL", defaultLogLevel)),
			TraceProjectID: stringWithDefault(lookup, "API_OBSERVABILITY_TRACE_PROJECT", ""),
		},
		Build: BuildConfig{
			Version:   stringWithDefault(lookup, "API_BUILD_VERSION", "dev"),
			CommitSHA: stringWithDefault(lookup, "API_BUILD_COMMIT_SHA", ""),
		},
	}

	// Firestore and Pub/Sub default to the Firebase project.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Secrets.DefaultProject == "" {
		cfg.Secrets.DefaultProject = cfg.Firebase.ProjectID
	}
	if cfg.Observability.TraceProjectID == "" {
		cfg.Observability.TraceProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Auth.OIDC.Issuers) == 0 {
		cfg.Auth.OIDC.Issuers = []string{defaultOIDCIssuer}
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Notifications.SigningSecret", &cfg.Notifications.SigningSecret},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	required := append(append([]string(nil), options.requiredSecrets...), cfg.Secrets.Required...)
	if missing := findMissingSecrets(required, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		invalid = append(invalid, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		invalid = append(invalid, "Firestore.ProjectID")
	}
	if strings.TrimSpace(cfg.PubSub.NotificationsTopic) == "" {
		invalid = append(invalid, "PubSub.NotificationsTopic")
	}
	if cfg.Notifications.DispatchTimeout <= 0 {
		invalid = append(invalid, "Notifications.DispatchTimeout")
	}
	if len(cfg.Requests.Currency) != 3 {
		invalid = append(invalid, "Requests.Currency")
	}
	if cfg.Requests.OrderNumberAttempts <= 0 {
		invalid = append(invalid, "Requests.OrderNumberAttempts")
	}
	if cfg.Requests.MaxBodyBytes <= 0 {
		invalid = append(invalid, "Requests.MaxBodyBytes")
	}
	if cfg.Requests.CreatePerMinute < 0 {
		invalid = append(invalid, "Requests.CreatePerMinute")
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

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}
