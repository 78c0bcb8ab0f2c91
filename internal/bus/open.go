package bus

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"wallettx/internal/config"
)

// Open builds the bus selected by cfg.Driver. The redis client is only used by
// the redis driver.
func Open(cfg config.BusConfig, client *redis.Client) (Bus, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(cfg.Partitions), nil
	case "redis", "":
		if client == nil {
			return nil, errors.New("redis bus requires a redis client")
		}
		return NewRedisStreams(client, cfg.Partitions, WithBlockTime(cfg.BlockTime)), nil
	case "rabbitmq":
		r, err := DialRabbitMQ(cfg.RabbitURL, cfg.Partitions)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}
