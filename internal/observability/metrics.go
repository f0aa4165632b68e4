package observability

import (
	"context"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector records knowledge-service calls through OpenTelemetry
// and exposes them to Prometheus.
type MetricsCollector struct {
	provider *sdkmetric.MeterProvider

	knowledgeCalls   metric.Int64Counter
	knowledgeLatency metric.Float64Histogram
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NewMetricsCollector creates a collector whose readings are registered on
// reg, or the default registerer when reg is nil. A disabled config returns
// a collector that records nothing.
func NewMetricsCollector(config MetricsConfig, reg promclient.Registerer) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}
	if reg == nil {
		reg = promclient.DefaultRegisterer
	}

	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("genflow")

	knowledgeCalls, err := meter.Int64Counter(
		"genflow.knowledge.calls",
		metric.WithDescription("Knowledge service calls by operation and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge_calls counter: %w", err)
	}

	knowledgeLatency, err := meter.Float64Histogram(
		"genflow.knowledge.duration",
		metric.WithDescription("Knowledge service call latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge_duration histogram: %w", err)
	}

	return &MetricsCollector{
		provider:         provider,
		knowledgeCalls:   knowledgeCalls,
		knowledgeLatency: knowledgeLatency,
	}, nil
}

// ObserveKnowledgeCall records one remote call.
func (m *MetricsCollector) ObserveKnowledgeCall(ctx context.Context, operation, outcome string, duration time.Duration) {
	if m == nil || m.knowledgeCalls == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.knowledgeCalls.Add(ctx, 1, attrs)
	m.knowledgeLatency.Record(ctx, duration.Seconds(), attrs)
}

// Shutdown flushes and stops the meter provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
