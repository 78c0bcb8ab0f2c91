package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Locker elects the single sweeper of a cluster.
type Locker interface {
	// TryLock acquires key without waiting. acquired is false when another
	// process holds it.
	TryLock(ctx context.Context, key string) (unlock func(context.Context) error, acquired bool, err error)
}

// RedisLocker is a redsync-backed Locker.
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

func NewRedisLocker(client *redis.Client, expiry time.Duration) *RedisLocker {
	if expiry <= 0 {
		expiry = time.Minute
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(context.Context) error, bool, error) {
	mutex := l.rs.NewMutex(key, redsync.WithExpiry(l.expiry), redsync.WithTries(1))

	if err := mutex.LockContext(ctx); err != nil {
		if errors.Is(err, redsync.ErrFailed) ||
			strings.Contains(err.Error(), "lock already taken") ||
			strings.Contains(err.Error(), "failed to acquire lock") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}

	return func(ctx context.Context) error {
		ok, err := mutex.UnlockContext(ctx)
		if err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		if !ok {
			return fmt.Errorf("release %s: lock was not held", key)
		}
		return nil
	}, true, nil
}

// LocalLocker always acquires. It serves single-instance deployments and tests.
type LocalLocker struct{}

func (LocalLocker) TryLock(context.Context, string) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}
