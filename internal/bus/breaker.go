package bus

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"wallettx/internal/logging"
)

// BreakerSettings tunes the publish circuit breaker.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

// DefaultBreakerSettings trips after 5 consecutive failures and probes again after 10s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		OpenTimeout:         10 * time.Second,
		HalfOpenRequests:    1,
	}
}

// BreakerPublisher fails fast while the underlying transport keeps failing, so
// the outbox relay backs off instead of hammering an unreachable broker.
type BreakerPublisher struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerPublisher wraps next with a circuit breaker named name.
func NewBreakerPublisher(next Publisher, name string, settings BreakerSettings, logger *zap.Logger) *BreakerPublisher {
	logger = logging.OrNop(logger)

	return &BreakerPublisher{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: settings.HalfOpenRequests,
			Timeout:     settings.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("publish circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}),
	}
}

func (b *BreakerPublisher) Publish(ctx context.Context, msg Message) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Publish(ctx, msg)
	})
	if err == nil {
		return nil
	}

	var pubErr *PublishError
	if errors.As(err, &pubErr) {
		return err
	}
	return &PublishError{Topic: msg.Topic, Key: msg.Key, Err: err}
}

// State reports the breaker state (closed, half-open, open).
func (b *BreakerPublisher) State() string {
	return b.cb.State().String()
}
