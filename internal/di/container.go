package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autox/api/internal/platform/config"
	"github.com/autox/api/internal/repositories"
	"github.com/autox/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	ServiceRequests services.ServiceRequestService
	Catalog         services.CatalogService
	System          services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Dispatcher   *services.NotificationDispatcher
}

// Option customises NewContainer.
type Option func(*containerOptions)

type containerOptions struct {
	publisher services.NotificationPublisher
	logger    func(context.Context, string, map[string]any)
	build     services.BuildInfo
	clock     func() time.Time
}

// WithNotificationPublisher enables asynchronous lifecycle notifications through publisher.
func WithNotificationPublisher(publisher services.NotificationPublisher) Option {
	return func(o *containerOptions) {
		o.publisher = publisher
	}
}

// WithEventLogger sets the structured event hook handed to services.
func WithEventLogger(logger func(context.Context, string, map[string]any)) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithBuildInfo sets the metadata reported by the system service.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = build
	}
}

// WithClock overrides the service clock, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides the Firestore registry,
// while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	var dispatcher *services.NotificationDispatcher
	if options.publisher != nil {
		d, err := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
			Publisher: options.publisher,
			Timeout:   cfg.Notifications.DispatchTimeout,
			Logger:    options.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build notification dispatcher: %w", err)
		}
		dispatcher = d
	}

	svc, err := buildServices(ctx, reg, cfg, options, dispatcher)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		Dispatcher:   dispatcher,
	}, nil
}

// Close drains in-flight notifications and releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Dispatcher != nil {
		if err := c.Dispatcher.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain notifications: %w", err))
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, options containerOptions, dispatcher *services.NotificationDispatcher) (Services, error) {
	var svc Services

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Materials: reg.Materials(),
		Vehicles:  reg.Vehicles(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	deps := services.ServiceRequestServiceDeps{
		Requests:            reg.ServiceRequests(),
		Events:              reg.ServiceRequestEvents(),
		Materials:           reg.Materials(),
		Vehicles:            reg.Vehicles(),
		Partners:            reg.Partners(),
		Clock:               options.clock,
		Currency:            cfg.Requests.Currency,
		OrderNumberAttempts: cfg.Requests.OrderNumberAttempts,
		Logger:              options.logger,
	}
	if dispatcher != nil {
		deps.Notifier = dispatcher
	}
	requestSvc, err := services.NewServiceRequestService(deps)
	if err != nil {
		return Services{}, fmt.Errorf("build service request service: %w", err)
	}
	svc.ServiceRequests = requestSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		build := options.build
		if build.Version == "" {
			build.Version = cfg.Build.Version
		}
		if build.CommitSHA == "" {
			build.CommitSHA = cfg.Build.CommitSHA
		}
		if build.Environment == "" {
			build.Environment = cfg.Secrets.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            options.clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
