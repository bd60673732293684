// Package app wires the components shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/api"
	"github.com/ricirt/pigeonpost/internal/config"
	"github.com/ricirt/pigeonpost/internal/db"
	"github.com/ricirt/pigeonpost/internal/lock"
	"github.com/ricirt/pigeonpost/internal/metrics"
	"github.com/ricirt/pigeonpost/internal/news"
	"github.com/ricirt/pigeonpost/internal/ratelimiter"
	"github.com/ricirt/pigeonpost/internal/recipient"
	"github.com/ricirt/pigeonpost/internal/repository"
	"github.com/ricirt/pigeonpost/internal/service"
	"github.com/ricirt/pigeonpost/internal/source"
	"github.com/ricirt/pigeonpost/internal/transport"
	"github.com/ricirt/pigeonpost/internal/worker"
)

// App holds every long-lived component of one process.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Pool     *pgxpool.Pool
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Notifications repository.NotificationRepository
	Outbox        repository.OutboxRepository
	Recipients    repository.RecipientRepository
	Sources       *source.Registry

	Service    *service.NotificationService
	News       *news.Service
	Dispatcher *worker.OutboxDispatcher
	Deployer   *worker.Deployer
}

// Open connects to the database and builds the App on top of it.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a, err := Build(cfg, logger, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

// Build wires the App over an existing pool. Nothing touches the pool here.
func Build(cfg *config.Config, logger *zap.Logger, pool *pgxpool.Pool) (*App, error) {
	a := &App{
		Config:        cfg,
		Logger:        logger,
		Pool:          pool,
		Registry:      prometheus.NewRegistry(),
		Notifications: repository.NewPgNotificationRepository(pool),
		Outbox:        repository.NewPgOutboxRepository(pool),
		Recipients:    repository.NewPgRecipientRepository(pool),
		Sources:       source.NewRegistry(),
	}
	a.Metrics = metrics.New(a.Registry)

	newsRepo := news.NewPgRepository(pool)
	if err := news.Register(a.Sources, newsRepo, a.Recipients, cfg.DefaultFrom); err != nil {
		return nil, err
	}

	tr, err := transport.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	locker, err := newLocker(cfg, pool, logger)
	if err != nil {
		return nil, err
	}

	a.Service = service.NewNotificationService(a.Notifications, a.Outbox, a.Recipients, a.Sources, logger.Named("service"))
	a.News = news.NewService(newsRepo, a.Service, logger.Named("news"))

	onProcessed, onEntryCreated := a.Metrics.ProcessorHooks()
	processor := worker.NewQueueProcessor(
		a.Notifications, a.Outbox, a.Sources,
		recipient.NewResolver(a.Sources, a.Recipients),
		worker.RenderFailurePolicy(cfg.RenderFailurePolicy),
		cfg.RecipientLimit(),
		cfg.MaxRetries,
		logger.Named("processor"),
		worker.ProcessorHooks{OnProcessed: onProcessed, OnEntryCreated: onEntryCreated},
	)

	onSent, onFailed := a.Metrics.DispatcherHooks()
	a.Dispatcher = worker.NewOutboxDispatcher(
		a.Outbox, tr,
		ratelimiter.New(cfg.RateLimit, cfg.RateBurst),
		worker.DispatcherOptions{SinkAddress: cfg.SinkAddress, DialRetries: cfg.TransportRetries},
		logger.Named("dispatcher"),
		worker.DispatcherHooks{OnSent: onSent, OnFailed: onFailed},
	)

	onRun, onBacklog := a.Metrics.DeployHooks()
	a.Deployer = worker.NewDeployer(
		locker, cfg.LockName, processor, a.Dispatcher,
		a.Notifications, a.Outbox, cfg.MaxRetries,
		logger.Named("deploy"),
		worker.DeployHooks{OnRun: onRun, OnBacklog: onBacklog},
	)

	if cfg.SinkMode() {
		logger.Warn("sink mode active: every delivery goes to the sink address",
			zap.String("sink", cfg.SinkAddress),
			zap.Int("recipient_limit", cfg.RecipientLimit()),
		)
	}
	return a, nil
}

// Router builds the HTTP surface over the App.
func (a *App) Router() http.Handler {
	d := api.Deps{
		Notifications: a.Service,
		News:          a.News,
		Deployer:      a.Deployer,
		Pending:       a.Notifications,
		Undelivered:   a.Outbox,
		MaxRetries:    a.Config.MaxRetries,
		Gatherer:      a.Registry,
		Logger:        a.Logger,
	}
	if a.Pool != nil {
		d.DB = a.Pool
	}
	return api.NewRouter(d)
}

// Close releases the database pool.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func newLocker(cfg *config.Config, pool *pgxpool.Pool, logger *zap.Logger) (lock.Locker, error) {
	switch cfg.LockBackend {
	case config.LockPostgres:
		return lock.NewPgAdvisoryLocker(pool), nil
	case config.LockFile:
		return lock.NewFileLocker(cfg.LockDir, logger.Named("lock")), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}
