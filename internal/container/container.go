package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/mediator"
	"github.com/sykepenger/spesialist/internal/application/router"
	"github.com/sykepenger/spesialist/internal/infrastructure/bus/kafka"
	"github.com/sykepenger/spesialist/internal/infrastructure/worker"
	httpapi "github.com/sykepenger/spesialist/internal/interfaces/http"
	"github.com/sykepenger/spesialist/pkg/utils"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config    *Config
	logger    *zap.Logger
	sensitive *zap.Logger

	// Infrastructure - Data
	database     *DatabaseBundle
	repositories *RepositoryBundle

	// Infrastructure - Bus
	reader    kafka.Reader
	writer    kafka.Writer
	publisher *kafka.Publisher

	// Application
	mediator *mediator.Mediator
	router   router.Router

	// Workers
	workers    *WorkerBundle
	httpServer *httpapi.Server
	withHTTP   bool

	// Lifecycle. mu serializes Start and Close; state guards the component
	// fields for Health, which is served while workers stop.
	mu     sync.Mutex
	state  sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

var _ httpapi.Probe = (*Container)(nil)

// Option configures the container
type Option func(*Container)

// WithSensitiveLogger sets the tjenestekall logger
func WithSensitiveLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		c.sensitive = logger
	}
}

// WithKafkaReader replaces the consumer group reader
func WithKafkaReader(r kafka.Reader) Option {
	return func(c *Container) {
		c.reader = r
	}
}

// WithKafkaWriter replaces the bus writer
func WithKafkaWriter(w kafka.Writer) Option {
	return func(c *Container) {
		c.writer = w
	}
}

// WithoutHTTP skips the health server
func WithoutHTTP() Option {
	return func(c *Container) {
		c.withHTTP = false
	}
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, goerr.New("config is required")
	}
	if logger == nil {
		return nil, goerr.New("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid config")
	}

	c := &Container{
		config:    cfg,
		logger:    logger,
		sensitive: zap.NewNop(),
		withHTTP:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database, migrations and repositories
// 2. Bus writer and publisher
// 3. Mediator, chains, router and rivers
// 4. Workers: HTTP server, shard pool, bus subscriber
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return goerr.New("container has been closed")
	}
	if c.ready.Load() {
		return goerr.New("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return goerr.Wrap(err, "failed to initialize database")
	}
	c.logger.Info("Database initialized")

	c.initBus()
	c.logger.Info("Bus publisher initialized")

	if err := c.initApplication(); err != nil {
		c.teardown()
		return goerr.Wrap(err, "failed to initialize application")
	}
	c.logger.Info("Mediator and rivers initialized",
		zap.Int("chains", len(c.mediator.Kinds())),
		zap.Int("routes", len(c.router.Routes())))

	if err := c.initWorkers(ctx); err != nil {
		c.teardown()
		return goerr.Wrap(err, "failed to initialize workers")
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return goerr.New("container already closed")
	}

	c.logger.Info("Closing container")
	c.ready.Store(false)
	errs := c.teardown()
	c.closed.Store(true)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return goerr.New(fmt.Sprintf("container closed with %d errors", len(errs)), goerr.V("errors", errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized, newest first
func (c *Container) teardown() []error {
	var errs []error

	// Step 1: Stop workers (subscriber, pool, HTTP)
	c.state.RLock()
	workers := c.workers
	c.state.RUnlock()
	if workers != nil {
		if err := workers.Manager.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", utils.ErrorFields(err)...)
			errs = append(errs, err)
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	c.state.Lock()
	defer c.state.Unlock()
	c.workers = nil
	c.mediator = nil

	// Step 2: Flush and close the bus writer
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			c.logger.Error("Failed to close bus publisher", zap.Error(err))
			errs = append(errs, err)
		} else {
			c.logger.Info("Bus publisher closed")
		}
		c.publisher = nil
	}

	// Step 3: Close database
	if c.database != nil {
		if err := c.database.Raw.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, err)
		}
		c.database = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *httpapi.HealthStatus {
	c.state.RLock()
	defer c.state.RUnlock()

	status := &httpapi.HealthStatus{
		Overall:    true,
		Components: make(map[string]httpapi.ComponentHealth),
	}
	set := func(name string, h httpapi.ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	switch {
	case c.database == nil:
		set("database", httpapi.ComponentHealth{Message: "not initialized"})
	default:
		if err := c.database.Raw.PingContext(ctx); err != nil {
			set("database", httpapi.ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", httpapi.ComponentHealth{Healthy: true})
		}
	}

	if c.workers == nil {
		set("workers", httpapi.ComponentHealth{Message: "not initialized"})
	} else {
		set("workers", httpapi.ComponentHealth{
			Healthy: c.workers.Manager.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.Manager.GetWorkerCount()),
		})
		set("shard_pool", httpapi.ComponentHealth{Healthy: true, Details: c.workers.Pool.Stats()})
		set("subscriber", httpapi.ComponentHealth{
			Healthy: c.workers.Subscriber.IsRunning(),
			Details: c.workers.Subscriber.Stats(),
		})
	}

	if c.mediator == nil {
		set("mediator", httpapi.ComponentHealth{Message: "not initialized"})
	} else {
		set("mediator", httpapi.ComponentHealth{Healthy: true, Details: c.mediator.Kinds()})
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	db, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.state.Lock()
	c.database = db
	c.repositories = ProvideRepositories(db.TransactionMgr, c.logger)
	c.state.Unlock()
	return nil
}

// initBus creates the bus writer unless one was injected.
func (c *Container) initBus() {
	if c.writer == nil {
		c.writer = kafka.NewWriter(c.config.Publisher)
	}
	c.publisher = kafka.NewPublisher(c.writer, c.logger)
}

// initApplication creates the mediator, its chains and the router.
func (c *Container) initApplication() error {
	m, err := ProvideMediator(&MediatorDeps{
		Repos:           c.repositories,
		TxManager:       c.database.TransactionMgr,
		Bus:             c.publisher,
		Features:        c.config.Features,
		Logger:          c.logger,
		SensitiveLogger: c.sensitive,
	})
	if err != nil {
		return err
	}
	c.state.Lock()
	c.mediator = m
	c.router = ProvideRouter(m, c.logger)
	c.state.Unlock()
	return nil
}

// initWorkers creates and starts all background workers using providers.
func (c *Container) initWorkers(ctx context.Context) error {
	if c.reader == nil {
		c.reader = kafka.NewReader(c.config.Subscriber)
	}

	var leading []worker.Worker
	if c.withHTTP {
		c.httpServer = httpapi.NewServer(httpapi.ServerConfig{
			Host:         c.config.Server.Host,
			Port:         c.config.Server.Port,
			ReadTimeout:  c.config.Server.ReadTimeout,
			WriteTimeout: c.config.Server.WriteTimeout,
		}, c, &zapLoggerAdapter{logger: c.logger})
		leading = append(leading, c.httpServer)
	}

	workers := ProvideWorkers(&WorkerDeps{
		Pool:            c.config.Pool,
		Subscriber:      c.config.Subscriber,
		Reader:          c.reader,
		Handler:         c.router,
		Logger:          c.logger,
		SensitiveLogger: c.sensitive,
		Leading:         leading,
	})

	c.state.Lock()
	c.workers = workers
	c.state.Unlock()

	// StartAll stops what it started on failure; teardown tolerates the repeat
	return workers.Manager.StartAll(ctx)
}

// Getters for accessing container components

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Mediator returns the mediator.
func (c *Container) Mediator() *mediator.Mediator {
	return c.mediator
}

// Router returns the message router.
func (c *Container) Router() router.Router {
	return c.router
}

// HTTPServer returns the health server, nil when disabled.
func (c *Container) HTTPServer() *httpapi.Server {
	return c.httpServer
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the key-value Logger interfaces
// of the router and the HTTP server.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
