package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"genflow/internal/knowledge"
	"genflow/internal/prompt"
	tokenutil "genflow/internal/shared/token"
)

var _ knowledge.CallObserver = (*MetricsCollector)(nil)
var _ prompt.Observer = (*PromptMetrics)(nil)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.True(t, config.Metrics.Enabled)
	assert.False(t, config.Tracing.Enabled)
	assert.Equal(t, "otlp", config.Tracing.Exporter)
	assert.Equal(t, 1.0, config.Tracing.SampleRate)
	assert.Equal(t, "genflow", config.Tracing.ServiceName)
}

func TestMergeFileConfig(t *testing.T) {
	raw := `
logging:
  level: DEBUG
  format: json
metrics:
  enabled: false
tracing:
  enabled: true
  exporter: zipkin
  zipkin_endpoint: http://zipkin:9411/api/v2/spans
  sample_rate: 0.25
`
	var file FileConfig
	require.NoError(t, yaml.Unmarshal([]byte(raw), &file))

	merged := Merge(DefaultConfig(), file)
	assert.Equal(t, "debug", merged.Logging.Level)
	assert.Equal(t, "json", merged.Logging.Format)
	assert.False(t, merged.Metrics.Enabled)
	assert.True(t, merged.Tracing.Enabled)
	assert.Equal(t, "zipkin", merged.Tracing.Exporter)
	assert.Equal(t, "http://zipkin:9411/api/v2/spans", merged.Tracing.ZipkinEndpoint)
	assert.Equal(t, 0.25, merged.Tracing.SampleRate)
	assert.Equal(t, "localhost:4318", merged.Tracing.OTLPEndpoint, "unset keys keep defaults")
}

func TestMergeKeepsDefaultsForEmptyFile(t *testing.T) {
	merged := Merge(DefaultConfig(), FileConfig{})
	assert.Equal(t, DefaultConfig(), merged)
}

func TestMergeIgnoresOutOfRangeSampleRate(t *testing.T) {
	var file FileConfig
	file.Tracing.SampleRate = 3
	assert.Equal(t, 1.0, Merge(DefaultConfig(), file).Tracing.SampleRate)
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json", Output: &buf})

	logger.Info("hidden")
	logger.Component("orchestrator").Warn("Polling task %s", "42")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "Polling task 42", record["msg"])
	assert.Equal(t, "orchestrator", record["component"])
	assert.Equal(t, "WARN", record["level"])
}

func TestLoggerWithContextWithoutSpan(t *testing.T) {
	logger := NewLogger(LogConfig{Output: &bytes.Buffer{}})
	assert.Same(t, logger, logger.WithContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLevel("debug").String())
	assert.Equal(t, "WARN", ParseLevel("warning").String())
	assert.Equal(t, "INFO", ParseLevel("bogus").String())
}

func TestSanitizeAPIKey(t *testing.T) {
	assert.Equal(t, "", SanitizeAPIKey(""))
	assert.Equal(t, "***", SanitizeAPIKey("short"))
	assert.Equal(t, "sk-abcde...wxyz", SanitizeAPIKey("sk-abcdefghijklmnopwxyz"))
}

func TestTracerProviderDisabled(t *testing.T) {
	tp, err := NewTracerProvider(TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, tp.Enabled())
	_, span := tp.Tracer().Start(context.Background(), "noop")
	span.End()
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestTracerProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewTracerProvider(TracingConfig{Enabled: true, Exporter: "jaeger"})
	assert.Error(t, err)
}

func TestMetricsCollectorRecordsKnowledgeCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewMetricsCollector(MetricsConfig{Enabled: true}, reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = collector.Shutdown(context.Background()) })

	collector.ObserveKnowledgeCall(context.Background(), "search", "success", 120*time.Millisecond)
	collector.ObserveKnowledgeCall(context.Background(), "rag", "transient", time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := map[string]int{}
	for _, family := range families {
		byName[family.GetName()] = len(family.GetMetric())
	}
	assert.Equal(t, 2, byName["genflow.knowledge.calls_total"], "knowledge call counter must be exported")
	assert.Equal(t, 2, byName["genflow.knowledge.duration_seconds"], "knowledge latency histogram must be exported")
}

func TestMetricsCollectorDisabled(t *testing.T) {
	collector, err := NewMetricsCollector(MetricsConfig{}, prometheus.NewRegistry())
	require.NoError(t, err)
	collector.ObserveKnowledgeCall(context.Background(), "search", "success", time.Millisecond)
	assert.NoError(t, collector.Shutdown(context.Background()))

	var nilCollector *MetricsCollector
	nilCollector.ObserveKnowledgeCall(context.Background(), "search", "success", time.Millisecond)
}

func TestPromptMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPromptMetricsWithRegisterer(reg)
	composer := prompt.NewComposer(knowledge.Unavailable("offline"), nil,
		prompt.WithTokenCounter(tokenutil.EstimateFast),
		prompt.WithObserver(metrics),
	)

	composer.Compose(context.Background(), "Refactor the poller", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.omitted.WithLabelValues(string(prompt.KindGuidelines))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.omitted.WithLabelValues(string(prompt.KindContext))))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.tokensBySection.WithLabelValues(string(prompt.KindContext))))
	assert.Greater(t, testutil.ToFloat64(metrics.tokensBySection.WithLabelValues(string(prompt.KindInstructions))), 0.0)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.promptTokens))
}
