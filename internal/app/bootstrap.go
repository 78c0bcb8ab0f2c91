package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallettx/internal/bus"
	"wallettx/internal/config"
	"wallettx/internal/repositories"
	"wallettx/internal/repositories/cache"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Infra holds the connections opened by Connect.
type Infra struct {
	Deps
}

// Connect opens the database, redis and the bus configured for cfg.Service,
// and declares the bus topology.
// Redis is optional unless the bus driver needs it: when it does not answer
// the process runs without cache and with a local sweep lock.
func Connect(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Infra, error) {
	db, err := repositories.Open(cfg.DB, cfg.Service)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database", zap.String("database", cfg.DB.Name))

	infra := &Infra{Deps: Deps{DB: db, Logger: logger}}

	client := cache.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err = cache.Ping(pingCtx, client)
	cancel()
	if err != nil {
		_ = client.Close()
		if cfg.Bus.Driver == "redis" || cfg.Bus.Driver == "" {
			_ = repositories.Close(db)
			return nil, err
		}
		logger.Warn("redis unavailable, running without cache", zap.Error(err))
	} else {
		infra.Redis = client
		logger.Info("connected to redis")
	}

	b, err := bus.Open(cfg.Bus, infra.Redis)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("open %s bus: %w", cfg.Bus.Driver, err)
	}
	infra.Bus = b

	if err := bus.DeclareTopology(ctx, b, Topology()); err != nil {
		infra.Close()
		return nil, err
	}
	return infra, nil
}

// Close releases every connection, the bus first.
func (i *Infra) Close() error {
	var errs []error
	if i.Bus != nil {
		errs = append(errs, i.Bus.Close())
	}
	if i.Redis != nil {
		errs = append(errs, closeRedis(i.Redis))
	}
	if i.DB != nil {
		errs = append(errs, repositories.Close(i.DB))
	}
	return errors.Join(errs...)
}

func closeRedis(client *redis.Client) error {
	if err := client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
