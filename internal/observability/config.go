package observability

import "strings"

// Config represents the complete observability configuration
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default observability configuration
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled:        false,
			Exporter:       "otlp",
			OTLPEndpoint:   "localhost:4318",
			SampleRate:     1.0,
			ServiceName:    "genflow",
			ServiceVersion: "dev",
		},
	}
}

// FileConfig is the observability section as read from YAML. Pointer
// fields distinguish an explicit false from an omitted key.
type FileConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"metrics"`
	Tracing struct {
		Enabled        *bool   `yaml:"enabled"`
		Exporter       string  `yaml:"exporter"`
		OTLPEndpoint   string  `yaml:"otlp_endpoint"`
		ZipkinEndpoint string  `yaml:"zipkin_endpoint"`
		SampleRate     float64 `yaml:"sample_rate"`
		ServiceName    string  `yaml:"service_name"`
		ServiceVersion string  `yaml:"service_version"`
	} `yaml:"tracing"`
}

// Merge applies the non-zero values of file onto base.
func Merge(base Config, file FileConfig) Config {
	if file.Logging.Level != "" {
		base.Logging.Level = strings.ToLower(file.Logging.Level)
	}
	if file.Logging.Format != "" {
		base.Logging.Format = strings.ToLower(file.Logging.Format)
	}

	if file.Metrics.Enabled != nil {
		base.Metrics.Enabled = *file.Metrics.Enabled
	}

	if file.Tracing.Enabled != nil {
		base.Tracing.Enabled = *file.Tracing.Enabled
	}
	if file.Tracing.Exporter != "" {
		base.Tracing.Exporter = strings.ToLower(file.Tracing.Exporter)
	}
	if file.Tracing.OTLPEndpoint != "" {
		base.Tracing.OTLPEndpoint = file.Tracing.OTLPEndpoint
	}
	if file.Tracing.ZipkinEndpoint != "" {
		base.Tracing.ZipkinEndpoint = file.Tracing.ZipkinEndpoint
	}
	// A zero sample rate cannot be expressed here; disable tracing instead.
	if file.Tracing.SampleRate > 0 && file.Tracing.SampleRate <= 1.0 {
		base.Tracing.SampleRate = file.Tracing.SampleRate
	}
	if file.Tracing.ServiceName != "" {
		base.Tracing.ServiceName = file.Tracing.ServiceName
	}
	if file.Tracing.ServiceVersion != "" {
		base.Tracing.ServiceVersion = file.Tracing.ServiceVersion
	}
	return base
}
