package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/garyjia/agency-workflow/internal/application/dispatcher"
	"github.com/garyjia/agency-workflow/internal/application/notification"
	"github.com/garyjia/agency-workflow/internal/application/port"
	"github.com/garyjia/agency-workflow/internal/application/queue"
	"github.com/garyjia/agency-workflow/internal/application/workflow"
	domainwf "github.com/garyjia/agency-workflow/internal/domain/workflow"
	"github.com/garyjia/agency-workflow/internal/infrastructure/external/redisstream"
	"github.com/garyjia/agency-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/agency-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/agency-workflow/internal/infrastructure/worker"
	"github.com/garyjia/agency-workflow/internal/metrics"
	"github.com/garyjia/agency-workflow/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the database, applies the embedded migrations and
// wraps the connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(database.Migrations()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Application: repository.NewApplicationRepository(db.DB, logger),
		Transition:  repository.NewTransitionRepository(db.DB, logger),
		Outbox:      repository.NewOutboxRepository(db.DB, logger),
	}, nil
}

// ProvideStageGraph loads the pipeline definitions, from a file when one is
// configured and from the compiled-in default otherwise.
func ProvideStageGraph(cfg *WorkflowConfig, logger *zap.Logger) (*domainwf.Graph, error) {
	if cfg == nil || cfg.StageGraphPath == "" {
		logger.Info("Using built-in stage graph")
		return domainwf.LoadDefault()
	}

	graph, err := domainwf.LoadFile(cfg.StageGraphPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load stage graph %s: %w", cfg.StageGraphPath, err)
	}
	logger.Info("Loaded stage graph", zap.String("path", cfg.StageGraphPath), zap.Int("types", len(graph.Types())))
	return graph, nil
}

// ProvideMetrics creates a registry with the workflow collectors plus the
// Go runtime and process collectors.
func ProvideMetrics() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.New(reg)
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(m *metrics.Metrics, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []dispatcher.Option{
		dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: logger}),
	}
	if m != nil {
		opts = append(opts, dispatcher.WithObserver(m))
	}

	return dispatcher.NewDispatcher(opts...), nil
}

// ProvideRedisSink connects to Redis and returns the stream sink.
// Returns nil when the sink is disabled.
func ProvideRedisSink(ctx context.Context, cfg *RedisConfig, logger *zap.Logger) (*redisstream.Sink, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	client := redisstream.NewClient(redisstream.Config{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Stream:   cfg.Stream,
		MaxLen:   cfg.MaxLen,
	})
	sink := redisstream.NewSink(client, cfg.Stream, cfg.MaxLen, logger)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sink.Ping(pingCtx); err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Addr, err)
	}

	logger.Info("Redis stream sink connected", zap.String("addr", cfg.Addr), zap.String("stream", cfg.Stream))
	return sink, nil
}

// SubscribeSinks registers the delivery sinks on every event type.
func SubscribeSinks(d dispatcher.Dispatcher, redisSink *redisstream.Sink, logger *zap.Logger) {
	d.SubscribeNamed(dispatcher.AllEvents, notification.LogSinkName, notification.NewLogSink(logger))
	if redisSink != nil {
		d.SubscribeNamed(dispatcher.AllEvents, redisstream.SinkName, redisSink.Handle)
	}
}

// ApplicationDeps holds dependencies for the workflow engine and queue service.
type ApplicationDeps struct {
	Graph     *domainwf.Graph
	Repos     *RepositoryBundle
	TxManager port.TransactionManager
	Outbox    port.EventOutbox
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine.
func ProvideWorkflowEngine(deps *ApplicationDeps) (workflow.WorkflowEngine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	return workflow.NewEngine(
		deps.Graph,
		deps.Repos.Application,
		deps.Repos.Transition,
		deps.TxManager,
		deps.Outbox,
		workflow.WithLogger(deps.Logger),
		workflow.WithMetrics(deps.Metrics),
	), nil
}

// ProvideQueueService creates the role queue service.
func ProvideQueueService(deps *ApplicationDeps) (queue.Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	return queue.NewService(
		deps.Graph,
		deps.Repos.Application,
		deps.TxManager,
		deps.Outbox,
		deps.Logger,
		queue.WithMetrics(deps.Metrics),
	), nil
}

func (d *ApplicationDeps) validate() error {
	if d == nil {
		return fmt.Errorf("application dependencies are required")
	}
	if d.Graph == nil {
		return fmt.Errorf("stage graph is required")
	}
	if d.Repos == nil {
		return fmt.Errorf("repositories are required")
	}
	if d.TxManager == nil {
		return fmt.Errorf("transaction manager is required")
	}
	if d.Outbox == nil {
		return fmt.Errorf("event outbox is required")
	}
	if d.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// ProvideWorkers creates the worker manager with the outbox relay worker
// registered but not started.
func ProvideWorkers(cfg *NotificationConfig, relay worker.Relayer, logger *zap.Logger) (*worker.WorkerManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("notification config is required")
	}
	if relay == nil {
		return nil, fmt.Errorf("relay is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(logger)

	workerCfg := worker.DefaultOutboxWorkerConfig()
	if cfg.RelayInterval > 0 {
		workerCfg.PollInterval = cfg.RelayInterval
	}
	if cfg.RelayTimeout > 0 {
		workerCfg.PassTimeout = cfg.RelayTimeout
	}
	manager.Register(worker.NewOutboxWorker(workerCfg, relay, logger))

	return manager, nil
}
