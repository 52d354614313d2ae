package telemetry

import (
	"fmt"
	"time"
)

// Config holds the full telemetry setup: logging, tracing and metrics.
type Config struct {
	// ServiceName identifies the service in logs, traces and metrics.
	ServiceName string

	// ServiceVersion is the running version of the service.
	ServiceVersion string

	// Environment names the deployment environment (development, staging,
	// production).
	Environment string

	// Logging configures structured logging.
	Logging LoggingConfig

	// Tracing configures distributed tracing.
	Tracing TracingConfig

	// Metrics configures metrics collection.
	Metrics MetricsConfig

	// ResourceAttributes are extra resource attributes attached to spans.
	ResourceAttributes map[string]string
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is the minimum level that gets logged (trace through fatal).
	Level string

	// Format is either "console" or "json".
	Format string

	// Output is "stdout", "stderr" or a file path.
	Output string

	// EnableCaller annotates each entry with its file:line origin.
	EnableCaller bool

	// EnableSampling turns on burst sampling for high-frequency logs.
	EnableSampling bool

	// SamplingInitial is how many messages per second pass before sampling
	// kicks in.
	SamplingInitial int

	// SamplingThereafter passes every Nth message once sampling is active.
	SamplingThereafter int

	// TimeFormat is the timestamp encoding (rfc3339, unix, unixms, unixmicro).
	TimeFormat string
}

// TracingConfig controls span generation and export.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool

	// Exporter selects where spans go: otlp, stdout or none.
	Exporter string

	// Endpoint is the OTLP collector address.
	Endpoint string

	// SamplingRate is the fraction of traces sampled, 0.0 to 1.0.
	SamplingRate float64

	// MaxExportBatchSize caps the span export batch size.
	MaxExportBatchSize int

	// ExportTimeout bounds a single export attempt.
	ExportTimeout time.Duration

	// Headers are sent with every OTLP export request.
	Headers map[string]string

	// Insecure disables TLS on the exporter connection.
	Insecure bool
}

// MetricsConfig controls the prometheus registry and its HTTP endpoint.
type MetricsConfig struct {
	// Enabled turns metrics collection on.
	Enabled bool

	// ListenAddress is where the metrics HTTP endpoint binds.
	ListenAddress string

	// Path is the HTTP path serving metrics.
	Path string

	// Namespace prefixes every metric name.
	Namespace string

	// DefaultHistogramBuckets are the latency buckets in seconds.
	DefaultHistogramBuckets []float64
}

// DefaultConfig returns a sensible default telemetry configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "unitflow",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stdout",
			EnableCaller:       true,
			SamplingInitial:    100,
			SamplingThereafter: 100,
			TimeFormat:         "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:            true,
			Exporter:           "stdout",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            make(map[string]string),
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "unitflow",
			DefaultHistogramBuckets: []float64{
				0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
			},
		},
		ResourceAttributes: make(map[string]string),
	}
}

// ProductionConfig returns a configuration tuned for production.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Format = "json"
	cfg.Logging.EnableSampling = true
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false
	return cfg
}

// DevelopmentConfig returns a configuration tuned for local development.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Tracing.SamplingRate = 1.0
	return cfg
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service version is required")
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "otlp", "stdout", "none":
		default:
			return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
		}
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}

	return nil
}
