// Package app assembles the transaction and wallet service processes from
// their configuration and infrastructure handles.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallettx/internal/bus"
	"wallettx/internal/config"
	"wallettx/internal/dispatch"
	"wallettx/internal/handlers"
	"wallettx/internal/logging"
	"wallettx/internal/middleware"
	"wallettx/internal/outbox"
	"wallettx/internal/repositories"
	"wallettx/internal/repositories/cache"
	"wallettx/internal/routes"
	"wallettx/internal/services/account"
	"wallettx/internal/services/reconcile"
	"wallettx/internal/services/transaction"
	"wallettx/internal/services/wallet"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	directoryTimeout = 5 * time.Second
	shutdownTimeout  = 10 * time.Second
	lockExpiry       = 30 * time.Second
)

var (
	ErrDBRequired  = errors.New("database is required")
	ErrBusRequired = errors.New("bus is required")
)

// Deps are the infrastructure handles a process runs on. Redis and
// MeterProvider are optional.
type Deps struct {
	DB            *gorm.DB
	Bus           bus.Bus
	Redis         *redis.Client
	Logger        *zap.Logger
	MeterProvider metric.MeterProvider
}

func (d Deps) validate() error {
	if d.DB == nil {
		return ErrDBRequired
	}
	if d.Bus == nil {
		return ErrBusRequired
	}
	return nil
}

// Process is one service: its HTTP app and background workers.
type Process struct {
	Name     string
	HTTP     *fiber.App
	Relay    *outbox.Relay
	Consumer *dispatch.Consumer
	// Sweeper is only set on the transaction service.
	Sweeper *reconcile.Sweeper

	// Transactions is set on the transaction service, Ledger on the wallet service.
	Transactions transaction.Service
	Ledger       wallet.Ledger

	port      string
	logger    *zap.Logger
	retention func(context.Context) error
}

// NewTransactionProcess wires the transaction service. A nil resolver is
// replaced by the wallet service directory client, cached in redis when
// deps.Redis is set.
func NewTransactionProcess(cfg config.Config, deps Deps, resolver account.Resolver) (*Process, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	logger := logging.OrNop(deps.Logger)
	store := repositories.NewStore(deps.DB)

	svc := transaction.NewService(store, transaction.Config{
		TransferTTL: cfg.Reconcile.TransferTTL,
		Producer:    cfg.Service,
	}, logger)

	relay, err := newRelay(store, deps, cfg, logger)
	if err != nil {
		return nil, err
	}

	reg := dispatch.NewRegistry()
	if err := transaction.RegisterHandlers(reg, svc); err != nil {
		return nil, fmt.Errorf("register transaction handlers: %w", err)
	}
	consumer, err := dispatch.NewConsumer(deps.Bus, cfg.Service, reg, cfg.Dispatch, logger,
		dispatch.WithMeterProvider(deps.MeterProvider))
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	var locker reconcile.Locker = reconcile.LocalLocker{}
	if deps.Redis != nil {
		locker = reconcile.NewRedisLocker(deps.Redis, lockExpiry)
	}
	sweeper := reconcile.NewSweeper(svc, locker, cfg.Reconcile, logger)

	if resolver == nil {
		resolver = account.NewDirectoryClient(cfg.WalletServiceURL, cfg.ServiceUser, cfg.ServicePassword, directoryTimeout)
		if deps.Redis != nil {
			resolver = account.NewCachedResolver(resolver, cache.NewCacheService(deps.Redis, cfg.AccountCacheTTL), logger)
		}
	}

	app := routes.NewApp(routes.AppConfig{Name: cfg.Service, AccessLog: true})
	routes.SetupTransactionRoutes(app, routes.TransactionRoutes{
		Transfers: handlers.NewTransferHandler(svc, resolver, logger),
		Health:    handlers.NewHealthHandler(cfg.Service, healthChecks(deps)),
		Auth:      middleware.JWT(cfg.JWTSecret, logger),
	})

	return &Process{
		Name:         cfg.Service,
		HTTP:         app,
		Relay:        relay,
		Consumer:     consumer,
		Sweeper:      sweeper,
		Transactions: svc,
		port:         cfg.Port,
		logger:       logger,
		retention:    retention(deps.Bus, reg.Topics(), cfg.Bus.TrimInterval, logger),
	}, nil
}

// NewWalletProcess wires the wallet service.
func NewWalletProcess(cfg config.Config, deps Deps) (*Process, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	logger := logging.OrNop(deps.Logger)
	store := repositories.NewStore(deps.DB)

	metrics, err := wallet.NewOtelMetrics(deps.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("init ledger metrics: %w", err)
	}
	ledger := wallet.NewLedger(store, wallet.Config{
		InitialAmount: cfg.InitialWalletAmount,
		Producer:      cfg.Service,
	}, logger, metrics)

	relay, err := newRelay(store, deps, cfg, logger)
	if err != nil {
		return nil, err
	}

	reg := dispatch.NewRegistry()
	if err := wallet.RegisterHandlers(reg, ledger); err != nil {
		return nil, fmt.Errorf("register wallet handlers: %w", err)
	}
	consumer, err := dispatch.NewConsumer(deps.Bus, cfg.Service, reg, cfg.Dispatch, logger,
		dispatch.WithMeterProvider(deps.MeterProvider))
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	app := routes.NewApp(routes.AppConfig{Name: cfg.Service, AccessLog: true})
	routes.SetupWalletRoutes(app, routes.WalletRoutes{
		Wallets:     handlers.NewWalletHandler(ledger, logger),
		Accounts:    handlers.NewAccountHandler(ledger, logger),
		Health:      handlers.NewHealthHandler(cfg.Service, healthChecks(deps)),
		Auth:        middleware.JWT(cfg.JWTSecret, logger),
		ServiceAuth: middleware.ServiceAuth(cfg.ServiceUser, cfg.ServicePasswordHash),
	})

	return &Process{
		Name:      cfg.Service,
		HTTP:      app,
		Relay:     relay,
		Consumer:  consumer,
		Ledger:    ledger,
		port:      cfg.Port,
		logger:    logger,
		retention: retention(deps.Bus, reg.Topics(), cfg.Bus.TrimInterval, logger),
	}, nil
}

func newRelay(store repositories.Store, deps Deps, cfg config.Config, logger *zap.Logger) (*outbox.Relay, error) {
	publisher := bus.NewBreakerPublisher(deps.Bus, cfg.Service+"-outbox", bus.DefaultBreakerSettings(), logger)
	relay, err := outbox.NewRelay(store, publisher, cfg.Outbox, logger, outbox.WithMeterProvider(deps.MeterProvider))
	if err != nil {
		return nil, fmt.Errorf("create outbox relay: %w", err)
	}
	return relay, nil
}

// retention returns the trim loop for the consumed topics, or nil when the bus
// keeps no acknowledged messages or trimming is disabled.
func retention(b bus.Bus, topics []string, interval time.Duration, logger *zap.Logger) func(context.Context) error {
	t, ok := b.(bus.Trimmer)
	if !ok || interval <= 0 {
		return nil
	}
	return func(ctx context.Context) error {
		return bus.RunRetention(ctx, t, topics, interval, logger)
	}
}

func healthChecks(deps Deps) map[string]handlers.Check {
	checks := map[string]handlers.Check{
		"database": func(ctx context.Context) error {
			sqlDB, err := deps.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return cache.Ping(ctx, deps.Redis)
		}
	}
	return checks
}

// RunWorkers runs the outbox relay, the consumer and, on the transaction
// service, the reconciliation sweeper until ctx is cancelled or one of them
// fails.
func (p *Process) RunWorkers(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Relay.Run(ctx) })
	g.Go(func() error { return p.Consumer.Run(ctx) })
	if p.Sweeper != nil {
		g.Go(func() error { return p.Sweeper.Run(ctx) })
	}
	if p.retention != nil {
		g.Go(func() error { return p.retention(ctx) })
	}
	return g.Wait()
}

// Run serves HTTP on the configured port next to the workers and shuts the
// server down when ctx is cancelled.
func (p *Process) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.RunWorkers(ctx) })
	g.Go(func() error {
		p.logger.Info("http server listening", zap.String("service", p.Name), zap.String("port", p.port))
		if err := p.HTTP.Listen(":" + p.port); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return p.HTTP.ShutdownWithContext(shutdownCtx)
	})

	err := g.Wait()
	p.logger.Info("process stopped", zap.String("service", p.Name))
	return err
}
