package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/northline-logistics/api/internal/platform/config"
	"github.com/northline-logistics/api/internal/platform/observability"
	"github.com/northline-logistics/api/internal/repositories"
	"github.com/northline-logistics/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Sequence  services.SequenceService
	Orders    services.OrderService
	Reports   services.OrderReportService
	Customers services.CustomerService
	System    services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option supplies optional collaborators to the container.
type Option func(*options)

type options struct {
	events        services.OrderEventPublisher
	notifications services.NotificationSender
	metrics       *observability.Metrics
	logger        *zap.Logger
	build         services.BuildInfo
	critical      []string
	clock         func() time.Time
	idGenerator   func() string
}

// WithEventPublisher routes order events to the given publisher.
func WithEventPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *options) {
		o.events = publisher
	}
}

// WithNotificationSender routes customer notifications to the given sender.
func WithNotificationSender(sender services.NotificationSender) Option {
	return func(o *options) {
		o.notifications = sender
	}
}

// WithMetrics records lifecycle counters on the supplied collector.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithLogger sets the fallback logger used when no request-scoped logger exists.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBuildInfo reports build metadata through the system service.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *options) {
		o.build = build
	}
}

// WithCriticalDependencies names the health checks that fail readiness outright.
func WithCriticalDependencies(names ...string) Option {
	return func(o *options) {
		o.critical = append(o.critical, names...)
	}
}

// WithClock overrides the time source shared by every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithIDGenerator overrides how order and customer identifiers are minted.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) {
		if gen != nil {
			o.idGenerator = gen
		}
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides the Firestore
// registry, while tests can supply the in-memory one.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	o := options{
		clock:       time.Now,
		idGenerator: func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	svc, err := buildServices(ctx, reg, cfg, o)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, o options) (Services, error) {
	var svc Services

	var metrics services.Metrics
	if o.metrics != nil {
		metrics = o.metrics
	}
	eventLogger := observability.EventLogger(o.logger)

	if counterRepo := reg.Counters(); counterRepo != nil {
		sequenceSvc, err := services.NewSequenceService(services.SequenceServiceDeps{
			Repository:     counterRepo,
			TrackingPrefix: cfg.Orders.TrackingPrefix,
			TrackingName:   cfg.Orders.TrackingCounter,
			Metrics:        metrics,
			Clock:          o.clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build sequence service: %w", err)
		}
		svc.Sequence = sequenceSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		build := o.build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            o.clock,
			Build:            build,
			Critical:         o.critical,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	customersRepo := reg.Customers()
	if customersRepo != nil {
		customerSvc, err := services.NewCustomerService(services.CustomerServiceDeps{
			Customers:   customersRepo,
			Clock:       o.clock,
			IDGenerator: o.idGenerator,
			Logger:      eventLogger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build customer service: %w", err)
		}
		svc.Customers = customerSvc
	}

	ordersRepo, usersRepo := reg.Orders(), reg.Users()
	if ordersRepo == nil || customersRepo == nil || usersRepo == nil {
		return svc, nil
	}

	if svc.Sequence != nil {
		transitions, err := services.LoadTransitionTable(cfg.Orders.TransitionsFile)
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:              ordersRepo,
			Customers:           customersRepo,
			Users:               usersRepo,
			Sequence:            svc.Sequence,
			UnitOfWork:          reg,
			Transitions:         transitions,
			LogSameDriverReason: cfg.Orders.LogSameDriverReason,
			Events:              o.events,
			Notifications:       o.notifications,
			Metrics:             metrics,
			Clock:               o.clock,
			IDGenerator:         o.idGenerator,
			Logger:              eventLogger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	reportSvc, err := services.NewReportService(services.ReportServiceDeps{
		Orders:    ordersRepo,
		Customers: customersRepo,
		Users:     usersRepo,
		Location:  cfg.Orders.Location,
		DayStart:  cfg.Orders.DayStart,
		Clock:     o.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build report service: %w", err)
	}
	svc.Reports = reportSvc

	return svc, nil
}
