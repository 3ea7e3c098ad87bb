package di

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"discussion-facilitator/backend/ai"
	"discussion-facilitator/backend/conversation/api"
	grpcserver "discussion-facilitator/backend/conversation/grpc"
	"discussion-facilitator/backend/conversation/repository"
	"discussion-facilitator/backend/conversation/service"
	"discussion-facilitator/backend/conversation/ws"
	"discussion-facilitator/backend/pkg/config"
	"discussion-facilitator/backend/pkg/health"
	"discussion-facilitator/backend/pkg/logger"
	"discussion-facilitator/backend/pkg/resilience"
	"discussion-facilitator/backend/pkg/secrets"
	sharedredis "discussion-facilitator/backend/shared/redis"
	"discussion-facilitator/backend/shared/observability"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	Config         *config.Config
	DB             *gorm.DB
	Logger         *logger.Logger
	Repository     *repository.GormMessageRepository
	Secrets        secrets.Manager
	Facilitator    *ai.GuardedFacilitator
	Coordinator    *service.Coordinator
	MessageService *service.MessageService
	MessageHandler *api.MessageHandler
	Hub            *ws.Hub
	Relay          *ws.Relay
	Redis          *sharedredis.Notifier
	Health         *health.Checker
	GRPC           *grpcserver.Server
	MeterProvider  *sdkmetric.MeterProvider
	MetricsHandler http.Handler

	shutdownTracing observability.ShutdownFunc
}

// Option overrides a dependency, mostly for tests
type Option func(*options)

type options struct {
	secrets     secrets.Manager
	facilitator ai.Facilitator
}

// WithSecrets replaces the Vault-backed secret manager
func WithSecrets(m secrets.Manager) Option {
	return func(o *options) { o.secrets = m }
}

// WithFacilitator replaces the OpenAI facilitator. It is still wrapped in
// the circuit breaker.
func WithFacilitator(f ai.Facilitator) Option {
	return func(o *options) { o.facilitator = f }
}

// New creates a new dependency injection container. The database must
// already be open; New migrates it.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, log *logger.Logger, opts ...Option) (*Container, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := repository.Migrate(db); err != nil {
		return nil, err
	}
	repo := repository.NewGormMessageRepository(db, cfg.Facilitator.ID)

	shutdownTracing, err := observability.SetupTracing(cfg.Observability.ServiceName, os.Stdout, cfg.Observability.TracingEnabled)
	if err != nil {
		return nil, err
	}
	meterProvider, metricsHandler, err := observability.SetupMetrics(cfg.Observability.ServiceName)
	if err != nil {
		return nil, err
	}

	c := &Container{
		Config:          cfg,
		DB:              db,
		Logger:          log,
		Repository:      repo,
		MeterProvider:   meterProvider,
		MetricsHandler:  metricsHandler,
		shutdownTracing: shutdownTracing,
	}

	c.Secrets = o.secrets
	if c.Secrets == nil {
		vm, err := secrets.NewVaultManager(secrets.VaultConfig{
			Enabled:     cfg.Vault.Enabled,
			Address:     cfg.Vault.Address,
			Token:       cfg.Vault.Token,
			Namespace:   cfg.Vault.Namespace,
			MountPath:   cfg.Vault.MountPath,
			SecretsPath: cfg.Vault.SecretsPath,
			CacheTTL:    cfg.Vault.CacheTTL,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create secret manager: %w", err)
		}
		c.Secrets = vm
	}

	var invoker ai.Facilitator
	if cfg.Facilitator.Enabled {
		invoker = o.facilitator
		if invoker == nil {
			invoker, err = c.newOpenAIFacilitator(ctx)
			if err != nil {
				return nil, err
			}
		}
	}
	if invoker != nil {
		breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "facilitator",
			FailureThreshold: cfg.Facilitator.FailureThreshold,
			RetryTimeout:     cfg.Facilitator.RetryTimeout,
			SuccessThreshold: 1,
		}, log)
		c.Facilitator = ai.NewGuardedFacilitator(invoker, breaker)
	} else {
		log.Warn("Facilitator is disabled; conversations will not be moderated")
	}

	coordOpts := []service.CoordinatorOption{
		service.WithMeter(meterProvider.Meter("discussion-facilitator/coordinator")),
	}
	var facilitator ai.Facilitator
	if c.Facilitator != nil {
		facilitator = c.Facilitator
	}
	c.Coordinator, err = service.NewCoordinator(repo, facilitator, service.CoordinatorConfig{
		FacilitatorID:  cfg.Facilitator.ID,
		Threshold:      cfg.Facilitator.Threshold,
		Topic:          cfg.Chat.Topic,
		InvokeTimeout:  cfg.Facilitator.Timeout,
		ClaimTTL:       cfg.Facilitator.ClaimTTL,
		ReleaseTimeout: cfg.Facilitator.ReleaseTimeout,
	}, log, coordOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	c.Hub = ws.NewHub(cfg.Security.AllowedOrigins, log)
	var notifier service.Notifier = c.Hub
	if cfg.Redis.Enabled {
		bus, err := sharedredis.NewNotifier(ctx, sharedredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		}, log)
		if err != nil {
			// polling clients still see every change
			log.LogError(err, "Redis unavailable, change feed stays local to this instance")
		} else {
			c.Redis = bus
			c.Relay = ws.NewRelay(c.Hub, bus, log)
			notifier = c.Relay
		}
	}

	c.MessageService = service.NewMessageService(repo, c.Coordinator, notifier, service.ServiceConfig{
		FacilitatorID:    cfg.Facilitator.ID,
		MaxAuthorLength:  cfg.Chat.MaxAuthorLength,
		MaxContentLength: cfg.Chat.MaxContentLength,
		Topic:            cfg.Chat.Topic,
	}, log)
	c.MessageHandler = api.NewMessageHandler(c.MessageService)

	c.Health = health.NewChecker(log, cfg.Observability.HealthPeriod)
	c.Health.RegisterDatabaseCheck(repo.Ping)
	if c.Redis != nil {
		c.Health.RegisterRedisCheck(c.Redis.Ping)
	}
	c.Health.RegisterFacilitatorCheck(func() string {
		if c.Facilitator == nil {
			return "disabled"
		}
		return c.Facilitator.State()
	})
	c.Health.RegisterCheck("websocket", false, func(context.Context) (health.Status, string, error) {
		return health.StatusUp, fmt.Sprintf("%d active connections", c.Hub.ActiveConnections()), nil
	})

	if cfg.GRPC.Enabled {
		c.GRPC = grpcserver.NewServer(log)
		c.Health.OnChange(c.GRPC.SetServing)
	}

	return c, nil
}

func (c *Container) newOpenAIFacilitator(ctx context.Context) (ai.Facilitator, error) {
	key := c.Secrets.GetSecretWithDefault(ctx, secrets.KeyOpenAIAPIKey, "")
	if key == "" {
		c.Logger.Warn("No OpenAI API key configured", "env", secrets.EnvKey(secrets.KeyOpenAIAPIKey))
		return nil, nil
	}

	f, err := ai.NewOpenAIFacilitator(ai.OpenAIConfig{
		APIKey:      key,
		BaseURL:     c.Config.Facilitator.BaseURL,
		Model:       c.Config.Facilitator.Model,
		MaxTokens:   c.Config.Facilitator.MaxTokens,
		Temperature: float32(c.Config.Facilitator.Temperature),
	}, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create facilitator: %w", err)
	}
	return f, nil
}

// Start launches the background workers. They stop when ctx is cancelled.
func (c *Container) Start(ctx context.Context) error {
	go c.Hub.Run(ctx)
	if c.Relay != nil {
		if err := c.Relay.Start(ctx); err != nil {
			return err
		}
	}
	c.Health.Start(ctx)
	return nil
}

// Close flushes telemetry and releases connections
func (c *Container) Close(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.GRPC != nil {
		c.GRPC.Stop()
	}
	if c.Redis != nil {
		keep(c.Redis.Close())
	}
	keep(c.MeterProvider.Shutdown(ctx))
	keep(c.shutdownTracing(ctx))
	return firstErr
}
