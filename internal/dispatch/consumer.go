// Package dispatch runs the consume loop of a service: one sequential worker
// per topic partition, each of which decodes envelopes, hands them to the
// registered handler with retries and acknowledges them once handled or
// dead-lettered.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"wallettx/internal/backoff"
	"wallettx/internal/bus"
	"wallettx/internal/config"
	"wallettx/internal/events"
	"wallettx/internal/logging"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxAttempts  = 5
	defaultRetryBackoff = 200 * time.Millisecond
	defaultMaxBackoff   = 30 * time.Second
)

type Consumer struct {
	bus         bus.Bus
	deadLetters bus.Publisher
	group       string
	registry    *Registry
	logger      *zap.Logger

	maxAttempts  int
	retryBackoff time.Duration
	maxBackoff   time.Duration

	provider metric.MeterProvider
	metrics  consumerMetrics
}

type Option func(*Consumer)

// WithDeadLetterPublisher publishes dead letters somewhere other than the bus
// the consumer reads from.
func WithDeadLetterPublisher(p bus.Publisher) Option {
	return func(c *Consumer) { c.deadLetters = p }
}

func WithMeterProvider(p metric.MeterProvider) Option {
	return func(c *Consumer) { c.provider = p }
}

func NewConsumer(b bus.Bus, group string, registry *Registry, cfg config.DispatchConfig, logger *zap.Logger, opts ...Option) (*Consumer, error) {
	if b == nil {
		return nil, ErrBusRequired
	}
	if group == "" {
		return nil, ErrGroupRequired
	}
	if registry == nil || len(registry.Topics()) == 0 {
		return nil, ErrNoHandlers
	}

	c := &Consumer{
		bus:          b,
		deadLetters:  b,
		group:        group,
		registry:     registry,
		logger:       logging.OrNop(logger).Named("dispatch"),
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
		maxBackoff:   cfg.MaxBackoff,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = defaultRetryBackoff
	}
	if c.maxBackoff <= 0 {
		c.maxBackoff = defaultMaxBackoff
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	m, err := newConsumerMetrics(c.provider)
	if err != nil {
		return nil, fmt.Errorf("init dispatch metrics: %w", err)
	}
	c.metrics = m
	return c, nil
}

// Run consumes every registered topic until ctx is cancelled or the bus is
// closed. Partitions are processed concurrently, messages of one partition
// strictly in order.
func (c *Consumer) Run(ctx context.Context) error {
	topics := c.registry.Topics()
	for _, topic := range topics {
		if err := c.bus.Declare(ctx, topic, c.group); err != nil {
			return fmt.Errorf("declare %s for %s: %w", topic, c.group, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		for p := 0; p < c.bus.Partitions(); p++ {
			topic, p := topic, p
			g.Go(func() error {
				return c.worker(ctx, topic, p)
			})
		}
	}

	c.logger.Info("consumer started",
		zap.String("group", c.group),
		zap.Strings("topics", topics),
		zap.Int("partitions", c.bus.Partitions()))
	err := g.Wait()
	c.logger.Info("consumer stopped", zap.String("group", c.group))
	return err
}

func (c *Consumer) worker(ctx context.Context, topic string, partition int) error {
	log := c.logger.With(zap.String("topic", topic), zap.Int("partition", partition))
	fetchFailures := 0

	for {
		d, err := c.bus.Fetch(ctx, topic, c.group, partition)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, bus.ErrClosed) {
				return nil
			}
			fetchFailures++
			log.Warn("fetch failed", zap.Int("failures", fetchFailures), zap.Error(err))
			if backoff.Sleep(ctx, backoff.Capped(c.retryBackoff, c.maxBackoff, fetchFailures-1)) != nil {
				return nil
			}
			continue
		}
		fetchFailures = 0

		if !c.process(ctx, d, log) {
			// interrupted by shutdown; the delivery stays pending
			return nil
		}
		if err := c.bus.Ack(ctx, d); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("ack failed, message will be redelivered", zap.String("delivery_id", d.ID), zap.Error(err))
		}
	}
}

// process handles one delivery. It returns false only when ctx was cancelled
// before the delivery was handled or dead-lettered.
func (c *Consumer) process(ctx context.Context, d *bus.Delivery, log *zap.Logger) bool {
	start := time.Now()

	env, err := events.Decode(d.Body)
	if err != nil {
		log.Error("undecodable envelope", zap.String("delivery_id", d.ID), zap.Error(err))
		return c.deadLetter(ctx, d, "", err, 1, log)
	}

	log = log.With(
		zap.String("event_id", env.EventID),
		zap.String("transaction_id", env.TransactionID),
		zap.String("account_id", env.AccountID),
		zap.String("event_type", string(env.EventType)),
	)
	log.Info("envelope received", zap.Bool("redelivered", d.Redelivered))

	h, ok := c.registry.Get(env.EventType)
	if !ok {
		return c.deadLetter(ctx, d, env.EventType, fmt.Errorf("%w: %s", ErrNoHandlerForType, env.EventType), 1, log)
	}

	attrs := metric.WithAttributes(
		attribute.String("topic", d.Topic),
		attribute.String("event_type", string(env.EventType)),
	)

	for attempt := 1; ; attempt++ {
		err := h.Handle(ctx, env)
		if err == nil {
			c.metrics.processed.Add(ctx, 1, attrs)
			c.metrics.handleTime.Record(ctx, time.Since(start).Seconds(), attrs)
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		if errors.Is(err, events.ErrInvalidPayload) || errors.Is(err, events.ErrMalformedEnvelope) {
			log.Error("invalid payload", zap.Error(err))
			return c.deadLetter(ctx, d, env.EventType, err, attempt, log)
		}
		if IsPermanent(err) && attempt >= c.maxAttempts {
			log.Error("giving up on envelope", zap.Int("attempts", attempt), zap.Error(err))
			return c.deadLetter(ctx, d, env.EventType, err, attempt, log)
		}

		c.metrics.retried.Add(ctx, 1, attrs)
		delay := backoff.Capped(c.retryBackoff, c.maxBackoff, attempt-1)
		log.Warn("handler failed, retrying",
			zap.Int("attempt", attempt),
			zap.Bool("permanent", IsPermanent(err)),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if backoff.Sleep(ctx, delay) != nil {
			return false
		}
	}
}

// deadLetter republishes d on its dead-letter topic, retrying until the
// publish succeeds or ctx is cancelled.
func (c *Consumer) deadLetter(ctx context.Context, d *bus.Delivery, eventType events.Type, cause error, attempts int, log *zap.Logger) bool {
	headers := make(map[string]string, len(d.Headers)+3)
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[events.HeaderDeadLetterReason] = cause.Error()
	headers[events.HeaderOriginalTopic] = d.Topic
	headers[events.HeaderAttempts] = strconv.Itoa(attempts)

	msg := bus.Message{
		Topic:   events.DeadLetterTopic(d.Topic),
		Key:     d.Key,
		Body:    d.Body,
		Headers: headers,
	}

	for try := 0; ; try++ {
		err := c.deadLetters.Publish(ctx, msg)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return false
		}
		log.Warn("dead-letter publish failed", zap.Int("try", try+1), zap.Error(err))
		if backoff.Sleep(ctx, backoff.Capped(c.retryBackoff, c.maxBackoff, try)) != nil {
			return false
		}
	}

	c.metrics.deadLettered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", d.Topic),
		attribute.String("event_type", string(eventType)),
	))
	log.Warn("envelope dead-lettered",
		zap.String("dead_letter_topic", msg.Topic),
		zap.String("reason", cause.Error()))
	return true
}
