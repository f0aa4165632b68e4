package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"genflow/internal/prompt"
	tokenutil "genflow/internal/shared/token"
)

// optionalSections are the prompt sections that depend on external sources.
var optionalSections = []prompt.Kind{prompt.KindGuidelines, prompt.KindBestPractices, prompt.KindContext}

// PromptMetrics tracks the composition of enriched prompts.
type PromptMetrics struct {
	tokensBySection *prometheus.GaugeVec
	omitted         *prometheus.CounterVec
	promptTokens    prometheus.Histogram
	embeddedFiles   prometheus.Counter
}

var (
	defaultPromptMetrics     *PromptMetrics
	defaultPromptMetricsOnce sync.Once
)

// NewPromptMetrics builds a PromptMetrics recorder using the default registry.
func NewPromptMetrics() *PromptMetrics {
	defaultPromptMetricsOnce.Do(func() {
		defaultPromptMetrics = newPromptMetrics(prometheus.DefaultRegisterer)
	})
	return defaultPromptMetrics
}

// NewPromptMetricsWithRegisterer allows tests to provide a dedicated registry.
func NewPromptMetricsWithRegisterer(reg prometheus.Registerer) *PromptMetrics {
	return newPromptMetrics(reg)
}

func newPromptMetrics(reg prometheus.Registerer) *PromptMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PromptMetrics{
		tokensBySection: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "genflow",
			Subsystem: "prompt",
			Name:      "tokens_by_section",
			Help:      "Approximate tokens per section of the most recent prompt",
		}, []string{"section"}),
		omitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genflow",
			Subsystem: "prompt",
			Name:      "section_omitted_total",
			Help:      "Prompts built without an optional section, by section",
		}, []string{"section"}),
		promptTokens: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "genflow",
			Subsystem: "prompt",
			Name:      "tokens",
			Help:      "Estimated size of composed prompts in tokens",
			Buckets:   prometheus.ExponentialBuckets(128, 2, 8),
		}),
		embeddedFiles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "genflow",
			Subsystem: "prompt",
			Name:      "embedded_files_total",
			Help:      "File previews embedded into prompts",
		}),
	}
}

// ObservePrompt records one composed prompt. It satisfies prompt.Observer.
func (m *PromptMetrics) ObservePrompt(p prompt.EnrichedPrompt) {
	if m == nil {
		return
	}
	for _, section := range p.Sections() {
		m.tokensBySection.WithLabelValues(string(section.Kind)).Set(float64(tokenutil.EstimateFast(section.Body)))
	}
	for _, kind := range optionalSections {
		if !p.Has(kind) {
			m.omitted.WithLabelValues(string(kind)).Inc()
			m.tokensBySection.WithLabelValues(string(kind)).Set(0)
		}
	}
	m.promptTokens.Observe(float64(p.TokenEstimate()))
	m.embeddedFiles.Add(float64(p.EmbeddedFiles()))
}
