package cache

import (
	"context"
	"fmt"

	"wallettx/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds the redis client shared by the stream bus, the cache
// and the sweeper lock.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping checks that the redis server answers.
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}
