package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/autox/api/internal/di"
	"github.com/autox/api/internal/handlers"
	"github.com/autox/api/internal/platform/auth"
	"github.com/autox/api/internal/platform/config"
	pfirestore "github.com/autox/api/internal/platform/firestore"
	"github.com/autox/api/internal/platform/idempotency"
	"github.com/autox/api/internal/platform/jobs"
	"github.com/autox/api/internal/platform/observability"
	"github.com/autox/api/internal/platform/secrets"
	"github.com/autox/api/internal/repositories"
	firestoreRepo "github.com/autox/api/internal/repositories/firestore"
	"github.com/autox/api/internal/services"
)

const (
	serviceName          = "autox-api"
	shutdownTimeout      = 10 * time.Second
	pubsubEmulatorEnvKey = "PUBSUB_EMULATOR_HOST"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	bootLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}

	envValues, err := config.EnvironmentValues()
	if err != nil {
		bootLogger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, bootLogger, envValues)
	if err != nil {
		bootLogger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			bootLogger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			bootLogger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		bootLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	baseLogger, err := observability.NewLogger(
		observability.WithLevel(cfg.Observability.LogLevel),
		observability.WithServiceContext(serviceName, cfg.Build.Version),
	)
	if err != nil {
		bootLogger.Fatal("failed to initialise service logger", zap.Error(err))
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	buildInfo := services.BuildInfo{
		Version:     cfg.Build.Version,
		CommitSHA:   cfg.Build.CommitSHA,
		Environment: cfg.Secrets.Environment,
		StartedAt:   startedAt,
	}
	if buildInfo.CommitSHA == "" {
		buildInfo.CommitSHA = "unknown"
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	pubsubClient, err := newPubSubClient(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()
	topic := pubsubClient.Topic(cfg.PubSub.NotificationsTopic)
	defer topic.Stop()

	publisher, err := jobs.NewPubSubNotificationPublisher(topic, []byte(cfg.Notifications.SigningSecret))
	if err != nil {
		logger.Fatal("failed to initialise notification publisher", zap.Error(err))
	}

	healthRepo, err := newHealthRepository(firestoreClient, fetcher, topic)
	if err != nil {
		logger.Warn("health: dependency checks disabled", zap.Error(err))
	}
	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, registry,
		di.WithNotificationPublisher(publisher),
		di.WithEventLogger(observability.EventLogger(logger.Named("services"))),
		di.WithBuildInfo(buildInfo),
	)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}

	authMetrics := observability.NewAuthMetrics(nil, logger.Named("metrics"))
	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier,
		auth.WithPartnerClaim(cfg.Auth.PartnerClaim),
		auth.WithMetrics(authMetrics),
	)
	oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg, authMetrics)

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyLogger := observability.NewPrintfAdapter(logger.Named("idempotency"))
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(idempotencyLogger),
	)
	janitor := idempotency.NewJanitor(idempotencyStore,
		idempotency.WithCleanupInterval(cfg.Idempotency.CleanupInterval),
		idempotency.WithCleanupBatchSize(cfg.Idempotency.CleanupBatchSize),
		idempotency.WithJanitorLogger(idempotencyLogger),
	)
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		janitor.Run(janitorCtx)
	}()

	serviceRequestHandlers := handlers.NewServiceRequestHandlers(authenticator, container.Services.ServiceRequests,
		handlers.WithCreateRateLimit(cfg.Requests.CreatePerMinute, time.Minute, time.Now),
		handlers.WithIdempotency(idempotencyMiddleware),
		handlers.WithMaxBodyBytes(cfg.Requests.MaxBodyBytes),
	)
	catalogHandlers := handlers.NewCatalogHandlers(container.Services.Catalog)
	internalHandlers := handlers.NewInternalHandlers(container.Services.ServiceRequests)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.Services.System),
	)

	projectID := cfg.Observability.TraceProjectID
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithServiceRequestRoutes(serviceRequestHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	} else {
		logger.Warn("auth: OIDC not configured; internal routes will reject requests")
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("autox api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	stopJanitor()
	<-janitorDone

	// Close drains pending notifications before the topic and clients are released by the deferred calls.
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
}

func newPubSubClient(ctx context.Context, cfg config.Config) (*pubsub.Client, error) {
	if host := strings.TrimSpace(cfg.PubSub.EmulatorHost); host != "" {
		if err := os.Setenv(pubsubEmulatorEnvKey, host); err != nil {
			return nil, fmt.Errorf("set pubsub emulator host: %w", err)
		}
	}
	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" && cfg.PubSub.EmulatorHost == "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	return pubsub.NewClient(ctx, cfg.PubSub.ProjectID, opts...)
}

func newHealthRepository(client *firestore.Client, fetcher *secrets.Fetcher, topic *pubsub.Topic) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:     "firestore",
			Timeout:  1500 * time.Millisecond,
			Critical: true,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				ok, err := t.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s does not exist", t.ID())
				}
				return nil
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config, metrics auth.MetricsRecorder) func(http.Handler) http.Handler {
	oidc := cfg.Auth.OIDC
	if strings.TrimSpace(oidc.JWKSURL) == "" || strings.TrimSpace(oidc.Audience) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	adapter := observability.NewPrintfAdapter(logger)
	cache := auth.NewJWKSCache(oidc.JWKSURL, auth.WithJWKSLogger(adapter))
	validator := auth.NewOIDCValidator(cache,
		auth.WithOIDCLogger(adapter),
		auth.WithOIDCMetrics(metrics),
		auth.WithOIDCAllowedEmails(oidc.AllowedEmails...),
	)
	if len(oidc.AllowedEmails) == 0 {
		logger.Warn("auth: OIDC caller allowlist empty; any verified service account may call internal routes")
	}
	return validator.RequireOIDC(oidc.Audience, oidc.Issuers)
}

// requiredSecretNames makes the notification signing key mandatory outside local development.
func requiredSecretNames(env map[string]string) []string {
	envLabel := strings.ToLower(strings.TrimSpace(env["API_SECRETS_ENVIRONMENT"]))
	if envLabel == "" || envLabel == "local" {
		return nil
	}
	return []string{"Notifications.SigningSecret"}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECRETS_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRETS_DEFAULT_PROJECT")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRETS_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}
