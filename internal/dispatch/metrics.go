package dispatch

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type consumerMetrics struct {
	processed    metric.Int64Counter
	retried      metric.Int64Counter
	deadLettered metric.Int64Counter
	handleTime   metric.Float64Histogram
}

func newConsumerMetrics(provider metric.MeterProvider) (consumerMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("wallettx.dispatch.consumer")

	var (
		m   consumerMetrics
		err error
	)

	m.processed, err = meter.Int64Counter(
		"dispatch.events.processed",
		metric.WithDescription("Number of envelopes handled and acknowledged"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return consumerMetrics{}, fmt.Errorf("create dispatch.events.processed counter: %w", err)
	}

	m.retried, err = meter.Int64Counter(
		"dispatch.events.retried",
		metric.WithDescription("Number of handler attempts that failed and were retried"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return consumerMetrics{}, fmt.Errorf("create dispatch.events.retried counter: %w", err)
	}

	m.deadLettered, err = meter.Int64Counter(
		"dispatch.events.dead_lettered",
		metric.WithDescription("Number of envelopes moved to a dead-letter topic"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return consumerMetrics{}, fmt.Errorf("create dispatch.events.dead_lettered counter: %w", err)
	}

	m.handleTime, err = meter.Float64Histogram(
		"dispatch.handle.latency",
		metric.WithDescription("Time from fetch to acknowledgement of one envelope"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return consumerMetrics{}, fmt.Errorf("create dispatch.handle.latency histogram: %w", err)
	}

	return m, nil
}
