package wallet

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// NoopMetricsCollector is a no-op implementation of MetricsCollector
type NoopMetricsCollector struct{}

func (n *NoopMetricsCollector) RecordOutcome(string, string) {}
func (n *NoopMetricsCollector) RecordDuplicate(string)       {}
func (n *NoopMetricsCollector) RecordProvisioned()           {}

// OtelMetrics reports ledger outcomes as otel counters.
type OtelMetrics struct {
	outcomes    metric.Int64Counter
	duplicates  metric.Int64Counter
	provisioned metric.Int64Counter
}

func NewOtelMetrics(provider metric.MeterProvider) (*OtelMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("wallettx.wallet.ledger")

	var (
		m   OtelMetrics
		err error
	)
	m.outcomes, err = meter.Int64Counter("ledger.transfers",
		metric.WithDescription("Number of transfer requests applied, by outcome"),
		metric.WithUnit("{transfer}"))
	if err != nil {
		return nil, fmt.Errorf("create ledger.transfers counter: %w", err)
	}
	m.duplicates, err = meter.Int64Counter("ledger.duplicates",
		metric.WithDescription("Number of requests skipped because they were already applied"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("create ledger.duplicates counter: %w", err)
	}
	m.provisioned, err = meter.Int64Counter("ledger.wallets.provisioned",
		metric.WithDescription("Number of wallets created"),
		metric.WithUnit("{wallet}"))
	if err != nil {
		return nil, fmt.Errorf("create ledger.wallets.provisioned counter: %w", err)
	}
	return &m, nil
}

func (m *OtelMetrics) RecordOutcome(status, reason string) {
	m.outcomes.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("reason", reason),
	))
}

func (m *OtelMetrics) RecordDuplicate(operation string) {
	m.duplicates.Add(context.Background(), 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func (m *OtelMetrics) RecordProvisioned() {
	m.provisioned.Add(context.Background(), 1)
}
