package outbox

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type relayMetrics struct {
	published         metric.Int64Counter
	failed            metric.Int64Counter
	stateUpdateFailed metric.Int64Counter
	cycleLatency      metric.Float64Histogram
}

func newRelayMetrics(provider metric.MeterProvider) (relayMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("wallettx.outbox.relay")

	var (
		m   relayMetrics
		err error
	)

	m.published, err = meter.Int64Counter(
		"outbox.messages.published",
		metric.WithDescription("Number of outbox messages published to the bus"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return relayMetrics{}, fmt.Errorf("create outbox.messages.published counter: %w", err)
	}

	m.failed, err = meter.Int64Counter(
		"outbox.messages.failed",
		metric.WithDescription("Number of outbox publish attempts that failed"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return relayMetrics{}, fmt.Errorf("create outbox.messages.failed counter: %w", err)
	}

	m.stateUpdateFailed, err = meter.Int64Counter(
		"outbox.messages.state_update_failed",
		metric.WithDescription("Number of outbox messages published but not marked as published"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return relayMetrics{}, fmt.Errorf("create outbox.messages.state_update_failed counter: %w", err)
	}

	m.cycleLatency, err = meter.Float64Histogram(
		"outbox.relay.latency",
		metric.WithDescription("Time taken per relay cycle"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return relayMetrics{}, fmt.Errorf("create outbox.relay.latency histogram: %w", err)
	}

	return m, nil
}
