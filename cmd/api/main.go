package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/northline-logistics/api/internal/di"
	"github.com/northline-logistics/api/internal/handlers"
	"github.com/northline-logistics/api/internal/platform/auth"
	"github.com/northline-logistics/api/internal/platform/config"
	pfirestore "github.com/northline-logistics/api/internal/platform/firestore"
	"github.com/northline-logistics/api/internal/platform/idempotency"
	"github.com/northline-logistics/api/internal/platform/jobs"
	"github.com/northline-logistics/api/internal/platform/observability"
	"github.com/northline-logistics/api/internal/platform/secrets"
	"github.com/northline-logistics/api/internal/repositories"
	firestoreRepo "github.com/northline-logistics/api/internal/repositories/firestore"
	"github.com/northline-logistics/api/internal/repositories/memory"
	"github.com/northline-logistics/api/internal/services"
)

const (
	idempotencyCollection = "idempotencyKeys"
	rateLimitWindow       = time.Minute
	closeTimeout          = 5 * time.Second
	firestoreDialTimeout  = 10 * time.Second
	healthCheckTimeout    = 2 * time.Second
	firestoreCheckName    = "firestore"
)

func main() {
	flags := pflag.NewFlagSet("northline-api", pflag.ExitOnError)
	envFile := flags.String("env-file", "", "dotenv file loaded before the process environment")
	transitionsFile := flags.String("transitions", "", "YAML order status transition table (overrides API_ORDERS_TRANSITIONS_FILE)")
	port := flags.StringP("port", "p", "", "listen port (overrides API_SERVER_PORT)")
	_ = flags.Parse(os.Args[1:])

	ctx := context.Background()
	startedAt := time.Now().UTC()

	var loadOpts []config.Option
	if strings.TrimSpace(*envFile) != "" {
		loadOpts = append(loadOpts, config.WithEnvFile(*envFile))
	}

	envValues, err := config.EnvironmentValues(loadOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	loadOpts = append(loadOpts,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if strings.TrimSpace(*transitionsFile) != "" {
		cfg.Orders.TransitionsFile = *transitionsFile
	}
	if strings.TrimSpace(*port) != "" {
		cfg.Server.Port = *port
	}

	metrics := observability.NewMetrics()
	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	var (
		checks            []repositories.DependencyCheck
		idempotencyStore  idempotency.Store
		firestoreProvider *pfirestore.Provider
	)
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		idempotencyStore = idempotency.NewMemoryStore()
	default:
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore, pfirestore.WithDialTimeout(firestoreDialTimeout))
		if _, err := firestoreProvider.Client(ctx); err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		checks = append(checks, repositories.DependencyCheck{
			Name:    firestoreCheckName,
			Timeout: 1500 * time.Millisecond,
			Check:   firestoreProvider.Ping,
		})
		idempotencyStore = idempotency.NewFirestoreStore(firestoreProvider, idempotencyCollection)
	}
	checks = append(checks, secretManagerCheck(fetcher))

	publishers, err := newPublishers(ctx, cfg.PubSub)
	if err != nil {
		logger.Fatal("failed to initialise pubsub", zap.Error(err))
	}
	defer publishers.Close()
	checks = append(checks, publishers.checks()...)

	healthRepo, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyTimeout(healthCheckTimeout))
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}

	var registry repositories.Registry
	if firestoreProvider != nil {
		registry, err = firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
		if err != nil {
			logger.Fatal("failed to initialise firestore repositories", zap.Error(err))
		}
	} else {
		registry = memory.NewRegistry().WithHealth(healthRepo)
	}

	containerOpts := []di.Option{
		di.WithMetrics(metrics),
		di.WithLogger(logger.Named("orders")),
		di.WithBuildInfo(buildInfo),
		di.WithCriticalDependencies(firestoreCheckName),
	}
	if publishers.events != nil {
		containerOpts = append(containerOpts, di.WithEventPublisher(publishers.events))
	}
	if publishers.notifications != nil {
		containerOpts = append(containerOpts, di.WithNotificationSender(publishers.notifications))
	}
	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	authenticator, err := newAuthenticator(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}
	policy, err := auth.NewPolicy(cfg.Auth.PolicyFile)
	if err != nil {
		logger.Fatal("failed to load authorization policy", zap.Error(err))
	}

	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	var janitorWG sync.WaitGroup
	janitorWG.Add(1)
	go func() {
		defer janitorWG.Done()
		idempotency.RunJanitor(janitorCtx, idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
	}()

	svc := container.Services
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders,
		handlers.WithOrderPolicy(policy),
		handlers.WithOrderReports(svc.Reports),
		handlers.WithOrderCreateRateLimit(cfg.RateLimits.CreateOrderPerMinute, rateLimitWindow, time.Now),
		handlers.WithOrderCreateMiddleware(idempotencyMiddleware),
		handlers.WithOrderPagination(cfg.Orders.DefaultPageSize, cfg.Orders.MaxPageSize),
	)
	customerHandlers := handlers.NewCustomerHandlers(authenticator, svc.Customers,
		handlers.WithCustomerPolicy(policy),
		handlers.WithCustomerCreateMiddleware(idempotencyMiddleware),
	)
	internalHandlers := handlers.NewInternalHandlers(svc.Orders)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID, metrics),
	}

	opts := []handlers.Option{
		handlers.WithBasePath(cfg.Server.BasePath),
		handlers.WithRequestTimeout(cfg.Server.WriteTimeout),
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(metrics.Handler()),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithCustomerRoutes(customerHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg); oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
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
		serverLogger.Info("northline api listening",
			zap.String("storage", cfg.Storage.Driver),
			zap.String("auth", cfg.Auth.Provider),
			zap.String("version", buildInfo.Version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	janitorCancel()
	janitorWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newAuthenticator(ctx context.Context, cfg config.Config) (*auth.Authenticator, error) {
	var verifier auth.TokenVerifier
	switch cfg.Auth.Provider {
	case config.AuthProviderSession:
		session, err := auth.NewSessionVerifier(cfg.Auth.SessionSecret, cfg.Auth.SessionIssuer)
		if err != nil {
			return nil, err
		}
		verifier = session
	default:
		firebase, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		verifier = firebase
	}
	return auth.NewAuthenticator(verifier, cfg.Auth.Provider,
		auth.WithRoleClaim(cfg.Auth.RoleClaim),
		auth.WithVerificationTimeout(cfg.Auth.VerifyTimeout),
	), nil
}

// pubsubPublishers holds the optional Pub/Sub sinks. Unset topics leave their publisher nil.
type pubsubPublishers struct {
	client        *pubsub.Client
	topics        []*pubsub.Topic
	events        *jobs.PubSubOrderEventPublisher
	notifications *jobs.PubSubNotificationPublisher
}

func newPublishers(ctx context.Context, cfg config.PubSubConfig) (*pubsubPublishers, error) {
	p := &pubsubPublishers{}
	eventsTopic := strings.TrimSpace(cfg.OrderEventsTopic)
	notificationsTopic := strings.TrimSpace(cfg.NotificationsTopic)
	if eventsTopic == "" && notificationsTopic == "" {
		return p, nil
	}
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub: project id is required when a topic is configured")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub: new client: %w", err)
	}
	p.client = client

	if eventsTopic != "" {
		topic := client.Topic(eventsTopic)
		p.topics = append(p.topics, topic)
		if p.events, err = jobs.NewPubSubOrderEventPublisher(topic); err != nil {
			p.Close()
			return nil, err
		}
	}
	if notificationsTopic != "" {
		topic := client.Topic(notificationsTopic)
		p.topics = append(p.topics, topic)
		if p.notifications, err = jobs.NewPubSubNotificationPublisher(topic); err != nil {
			p.Close()
			return nil, err
		}
	}
	return p, nil
}

func (p *pubsubPublishers) checks() []repositories.DependencyCheck {
	out := make([]repositories.DependencyCheck, 0, len(p.topics))
	for _, topic := range p.topics {
		t := topic
		out = append(out, repositories.DependencyCheck{
			Name:    "pubsub:" + t.ID(),
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
	return out
}

// Close flushes pending messages and releases the client.
func (p *pubsubPublishers) Close() {
	for _, topic := range p.topics {
		topic.Stop()
	}
	if p.client != nil {
		_ = p.client.Close()
	}
}

func secretManagerCheck(fetcher *secrets.Fetcher) repositories.DependencyCheck {
	const secretHealthReference = "secret://system/healthz?version=latest"
	return repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, secretHealthReference)
			if err == nil || errors.Is(err, secrets.ErrNotFound) {
				return nil
			}
			return err
		},
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, nil)
	validator := auth.NewOIDCValidator(cache)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRETS_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRETS_LOCAL_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
		secrets.WithFallbackFile(fallbackPath),
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

func requiredSecretNames(env map[string]string) []string {
	if strings.EqualFold(strings.TrimSpace(env["API_AUTH_PROVIDER"]), config.AuthProviderSession) {
		return []string{"Auth.SessionSecret"}
	}
	return nil
}
