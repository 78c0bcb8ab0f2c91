// Package outbox moves committed outbox rows onto the bus.
//
// Delivery is at-least-once: a row is published before it is marked published,
// so a crash in between publishes it again. A cycle stops at the first failure,
// which keeps rows with the same partition key in creation order.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallettx/internal/bus"
	"wallettx/internal/config"
	"wallettx/internal/events"
	"wallettx/internal/logging"
	"wallettx/internal/models"
	"wallettx/internal/repositories"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var (
	ErrStoreRequired     = errors.New("outbox relay requires a store")
	ErrPublisherRequired = errors.New("outbox relay requires a publisher")
)

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// Result captures one relay cycle.
type Result struct {
	Processed         int
	Published         int
	Failed            int
	StateUpdateFailed int
}

type Relay struct {
	store     repositories.Store
	publisher bus.Publisher
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
	provider  metric.MeterProvider
	wake      chan struct{}
	metrics   relayMetrics
}

type Option func(*Relay)

// WithMeterProvider overrides the global otel meter provider.
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(r *Relay) { r.provider = p }
}

func NewRelay(store repositories.Store, publisher bus.Publisher, cfg config.OutboxConfig, logger *zap.Logger, opts ...Option) (*Relay, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if publisher == nil {
		return nil, ErrPublisherRequired
	}

	r := &Relay{
		store:     store,
		publisher: publisher,
		logger:    logging.OrNop(logger).Named("outbox"),
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		wake:      make(chan struct{}, 1),
	}
	if r.interval <= 0 {
		r.interval = defaultInterval
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	m, err := newRelayMetrics(r.provider)
	if err != nil {
		return nil, fmt.Errorf("init outbox metrics: %w", err)
	}
	r.metrics = m
	return r, nil
}

// Wake asks a running relay to start a cycle now instead of at the next tick.
func (r *Relay) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run relays pending rows every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", zap.Duration("interval", r.interval))
	for {
		r.DispatchOnce(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// DispatchOnce publishes one batch of pending rows in creation order.
func (r *Relay) DispatchOnce(ctx context.Context) Result {
	var res Result
	if ctx.Err() != nil {
		return res
	}

	start := time.Now()
	defer func() {
		r.metrics.cycleLatency.Record(ctx, time.Since(start).Seconds())
	}()

	outbox := r.store.Outbox()
	msgs, err := outbox.ListPending(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("failed to list pending outbox messages", zap.Error(err))
		return res
	}

	for i := range msgs {
		msg := &msgs[i]
		res.Processed++
		attrs := metric.WithAttributes(attribute.String("topic", msg.Topic))

		if err := r.publisher.Publish(ctx, toBusMessage(msg)); err != nil {
			res.Failed++
			r.metrics.failed.Add(ctx, 1, attrs)
			r.logger.Warn("outbox publish failed",
				zap.Uint("outbox_id", msg.ID),
				zap.String("event_id", msg.EventID),
				zap.String("topic", msg.Topic),
				zap.Int("attempts", msg.Attempts+1),
				zap.Error(err))
			if markErr := outbox.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
				r.logger.Error("failed to record outbox failure", zap.Uint("outbox_id", msg.ID), zap.Error(markErr))
			}
			return res
		}

		if err := outbox.MarkPublished(ctx, msg.ID, time.Now().UTC()); err != nil {
			res.StateUpdateFailed++
			r.metrics.stateUpdateFailed.Add(ctx, 1, attrs)
			r.logger.Error("published outbox message not marked published",
				zap.Uint("outbox_id", msg.ID),
				zap.String("event_id", msg.EventID),
				zap.Error(err))
			return res
		}

		res.Published++
		r.metrics.published.Add(ctx, 1, attrs)
		r.logger.Debug("outbox message published",
			zap.Uint("outbox_id", msg.ID),
			zap.String("event_id", msg.EventID),
			zap.String("event_type", msg.EventType),
			zap.String("key", msg.PartitionKey))
	}
	return res
}

func toBusMessage(msg *models.OutboxMessage) bus.Message {
	return bus.Message{
		Topic: msg.Topic,
		Key:   msg.PartitionKey,
		Body:  msg.Payload,
		Headers: map[string]string{
			events.HeaderEventID:   msg.EventID,
			events.HeaderEventType: msg.EventType,
		},
	}
}
