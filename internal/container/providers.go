package container

import (
	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/chain"
	"github.com/sykepenger/spesialist/internal/application/mediator"
	"github.com/sykepenger/spesialist/internal/application/outbound"
	"github.com/sykepenger/spesialist/internal/application/port"
	"github.com/sykepenger/spesialist/internal/application/router"
	"github.com/sykepenger/spesialist/internal/domain/command"
	"github.com/sykepenger/spesialist/internal/infrastructure/bus/kafka"
	"github.com/sykepenger/spesialist/internal/infrastructure/persistence/repository"
	"github.com/sykepenger/spesialist/internal/infrastructure/persistence/sqlite"
	"github.com/sykepenger/spesialist/internal/infrastructure/worker"
	"github.com/sykepenger/spesialist/internal/interfaces/rivers"
	"github.com/sykepenger/spesialist/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Raw            *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Hendelser port.HendelseRepository
	Contexts  port.ContextRepository
	Solutions port.SolutionRepository
	Facts     port.CaseFactRepository
	Oppgaver  port.OppgaveRepository
}

// ProvideDatabase opens the database and runs pending migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, goerr.New("database config is required")
	}

	raw, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(raw, logger).RunMigrations(database.Migrations()); err != nil {
		_ = raw.Close()
		return nil, goerr.Wrap(err, "failed to run migrations")
	}

	return &DatabaseBundle{
		Raw:            raw,
		TransactionMgr: sqlite.NewDB(raw.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories over db.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Hendelser: repository.NewHendelseRepository(db, logger),
		Contexts:  repository.NewContextRepository(db, logger),
		Solutions: repository.NewSolutionRepository(db, logger),
		Facts:     repository.NewCaseFactRepository(db, logger),
		Oppgaver:  repository.NewOppgaveRepository(db, logger),
	}
}

// MediatorDeps holds dependencies for the mediator and its chains.
type MediatorDeps struct {
	Repos           *RepositoryBundle
	TxManager       port.TransactionManager
	Bus             port.MessagePublisher
	Features        command.Features
	Logger          *zap.Logger
	SensitiveLogger *zap.Logger
}

// ProvideMediator creates the mediator with every chain registered.
func ProvideMediator(deps *MediatorDeps) (*mediator.Mediator, error) {
	publisher := outbound.NewPublisher(deps.Bus,
		outbound.WithLogger(deps.Logger),
		outbound.WithSensitiveLogger(deps.SensitiveLogger))

	m, err := mediator.New(
		deps.Repos.Hendelser,
		deps.Repos.Contexts,
		deps.Repos.Solutions,
		deps.TxManager,
		publisher,
		mediator.WithLogger(deps.Logger),
		mediator.WithFeatures(deps.Features),
		mediator.WithTracerProvider(otel.GetTracerProvider()),
		mediator.WithMeterProvider(otel.GetMeterProvider()),
	)
	if err != nil {
		return nil, err
	}

	chain.Register(m, chain.Deps{
		Oppgaver:        deps.Repos.Oppgaver,
		Facts:           deps.Repos.Facts,
		Aborter:         m,
		Logger:          deps.Logger,
		SensitiveLogger: deps.SensitiveLogger,
	})
	return m, nil
}

// ProvideRouter creates the router with the rivers registered.
func ProvideRouter(m rivers.Mediator, logger *zap.Logger) router.Router {
	r := router.New(router.WithLogger(&zapLoggerAdapter{logger: logger}))
	rivers.Register(r, m, logger)
	return r
}

// WorkerDeps holds dependencies for the background workers.
type WorkerDeps struct {
	Pool            worker.ShardPoolConfig
	Subscriber      kafka.SubscriberConfig
	Reader          kafka.Reader
	Handler         kafka.MessageHandler
	Logger          *zap.Logger
	SensitiveLogger *zap.Logger
	// Leading workers start before the pool, e.g. the HTTP server
	Leading []worker.Worker
}

// WorkerBundle holds the worker manager and the workers it runs.
type WorkerBundle struct {
	Manager    *worker.WorkerManager
	Pool       *worker.ShardPool
	Subscriber *kafka.Subscriber
}

// ProvideWorkers creates the worker manager. The subscriber is registered
// after the pool so it stops first and no job is submitted to a closed pool.
func ProvideWorkers(deps *WorkerDeps) *WorkerBundle {
	manager := worker.NewWorkerManager(deps.Logger)
	for _, w := range deps.Leading {
		manager.Register(w)
	}

	pool := worker.NewShardPool(deps.Pool, deps.Logger)
	manager.Register(pool)

	subscriber := kafka.NewSubscriber(deps.Subscriber, deps.Reader, deps.Handler, pool, deps.Logger, deps.SensitiveLogger)
	manager.Register(subscriber)

	return &WorkerBundle{
		Manager:    manager,
		Pool:       pool,
		Subscriber: subscriber,
	}
}
