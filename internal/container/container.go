package container

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/garyjia/agency-workflow/internal/application/dispatcher"
	"github.com/garyjia/agency-workflow/internal/application/notification"
	"github.com/garyjia/agency-workflow/internal/application/port"
	"github.com/garyjia/agency-workflow/internal/application/queue"
	"github.com/garyjia/agency-workflow/internal/application/workflow"
	domainwf "github.com/garyjia/agency-workflow/internal/domain/workflow"
	"github.com/garyjia/agency-workflow/internal/infrastructure/external/redisstream"
	"github.com/garyjia/agency-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/agency-workflow/internal/infrastructure/worker"
	httpserver "github.com/garyjia/agency-workflow/internal/interfaces/http"
	"github.com/garyjia/agency-workflow/internal/metrics"
	"github.com/garyjia/agency-workflow/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	database     *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Domain
	graph *domainwf.Graph

	// Observability
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// Infrastructure - External
	redisSink *redisstream.Sink

	// Application
	dispatcher dispatcher.Dispatcher
	publisher  *notification.Publisher
	relay      *notification.Relay
	workflow   workflow.WorkflowEngine
	queue      queue.Service

	// Workers
	workers *worker.WorkerManager

	// Interfaces
	server *httpserver.Server

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Application port.ApplicationRepository
	Transition  port.TransitionRepository
	Outbox      port.OutboxRepository
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins background processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Stage graph
// 3. Metrics
// 4. Dispatcher, sinks and the event outbox
// 5. Workflow engine and queue service
// 6. Workers
// 7. HTTP server (constructed, not listening; see Server)
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	steps := []struct {
		name string
		init func() error
	}{
		{"database", c.initDatabase},
		{"stage graph", c.initStageGraph},
		{"metrics", c.initMetrics},
		{"notification", c.initNotification},
		{"application services", c.initServices},
		{"workers", c.initWorkers},
		{"http server", c.initServer},
	}

	for _, step := range steps {
		if err := step.init(); err != nil {
			c.teardown()
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Component initialized", zap.String("component", step.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized, newest first.
func (c *Container) teardown() []error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	// Stop workers so no relay pass races the dispatcher shutdown
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
		c.workers = nil
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}

	if c.redisSink != nil {
		if err := c.redisSink.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		} else {
			c.logger.Info("Redis client closed")
		}
		c.redisSink = nil
	}

	if c.database != nil {
		if err := c.database.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
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
func (c *Container) Health() *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	switch {
	case c.database == nil:
		set("database", ComponentHealth{Healthy: false, Message: "not initialized"})
	default:
		if err := c.database.Health(context.Background()); err != nil {
			set("database", ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true})
		}
	}

	if c.workers != nil {
		wh := ComponentHealth{Healthy: c.workers.IsRunning()}
		var msgs []string
		for _, s := range c.workers.Status() {
			if s.LastError != "" {
				wh.Healthy = false
				msgs = append(msgs, fmt.Sprintf("%s: last pass failed: %s", s.Name, s.LastError))
				continue
			}
			msgs = append(msgs, fmt.Sprintf("%s: delivered %d", s.Name, s.Delivered))
		}
		wh.Message = strings.Join(msgs, "; ")
		set("workers", wh)
	} else {
		set("workers", ComponentHealth{Healthy: false, Message: "not initialized"})
	}

	if c.dispatcher != nil {
		set("dispatcher", ComponentHealth{Healthy: true})
	} else {
		set("dispatcher", ComponentHealth{Healthy: false, Message: "not initialized"})
	}

	if c.redisSink != nil {
		if err := c.redisSink.Ping(context.Background()); err != nil {
			set("redis", ComponentHealth{Healthy: false, Message: err.Error()})
		} else {
			set("redis", ComponentHealth{Healthy: true})
		}
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.database = dbBundle.DB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.database, c.logger)
	if err != nil {
		return err
	}

	c.repositories = repos
	return nil
}

// initStageGraph loads the pipeline definitions.
func (c *Container) initStageGraph() error {
	graph, err := ProvideStageGraph(&c.config.Workflow, c.logger)
	if err != nil {
		return err
	}
	c.graph = graph
	return nil
}

// initMetrics creates the Prometheus registry and workflow collectors.
func (c *Container) initMetrics() error {
	c.registry, c.metrics = ProvideMetrics()
	return nil
}

// initNotification wires the dispatcher, its sinks and the event outbox.
func (c *Container) initNotification() error {
	disp, err := ProvideDispatcher(c.metrics, c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	sink, err := ProvideRedisSink(c.ctx, &c.config.Notification.Redis, c.logger)
	if err != nil {
		return err
	}
	c.redisSink = sink

	SubscribeSinks(c.dispatcher, c.redisSink, c.logger)

	c.publisher = notification.NewPublisher(
		c.repositories.Outbox,
		c.dispatcher,
		c.config.Notification.MaxAttempts,
		c.logger,
	)
	c.relay = notification.NewRelay(
		c.repositories.Outbox,
		c.publisher,
		c.config.Notification.BatchSize,
		c.metrics,
		c.logger,
	)
	return nil
}

// initServices creates the workflow engine and queue service.
func (c *Container) initServices() error {
	deps := &ApplicationDeps{
		Graph:     c.graph,
		Repos:     c.repositories,
		TxManager: c.db,
		Outbox:    c.publisher,
		Metrics:   c.metrics,
		Logger:    c.logger,
	}

	engine, err := ProvideWorkflowEngine(deps)
	if err != nil {
		return err
	}
	c.workflow = engine

	svc, err := ProvideQueueService(deps)
	if err != nil {
		return err
	}
	c.queue = svc

	return nil
}

// initWorkers initializes and starts all background workers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&c.config.Notification, c.relay, c.logger)
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// initServer builds the HTTP adapter over the application services.
func (c *Container) initServer() error {
	serverCfg := httpserver.ServerConfig{
		Host:            c.config.Server.Host,
		Port:            c.config.Server.Port,
		ReadTimeout:     c.config.Server.ReadTimeout,
		WriteTimeout:    c.config.Server.WriteTimeout,
		ShutdownTimeout: c.config.Server.ShutdownTimeout,
	}

	deps := httpserver.Dependencies{
		Engine: c.workflow,
		Queue:  c.queue,
		Graph:  c.graph,
		Health: c.database,
	}
	if c.config.Metrics.Enabled {
		serverCfg.MetricsPath = c.config.Metrics.Path
		deps.Gatherer = c.registry
	}

	c.server = httpserver.NewServer(serverCfg, deps, &zapLoggerAdapter{logger: c.logger})
	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Graph returns the loaded stage graph.
func (c *Container) Graph() *domainwf.Graph {
	return c.graph
}

// Registry returns the Prometheus registry.
func (c *Container) Registry() *prometheus.Registry {
	return c.registry
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Relay returns the outbox relay.
func (c *Container) Relay() *notification.Relay {
	return c.relay
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() workflow.WorkflowEngine {
	return c.workflow
}

// QueueService returns the role queue service.
func (c *Container) QueueService() queue.Service {
	return c.queue
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Server returns the HTTP server. The caller owns its Start/Stop.
func (c *Container) Server() *httpserver.Server {
	return c.server
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
// used by the HTTP layer.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// dispatcherLoggerAdapter adapts zap.Logger to the dispatcher.Logger interface.
type dispatcherLoggerAdapter struct {
	logger *zap.Logger
}

func (a *dispatcherLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *dispatcherLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
