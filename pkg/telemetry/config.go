package telemetry

import "fmt"

// Config contains the telemetry configuration for a reeve process.
type Config struct {
	// ServiceName is the name of the service for telemetry identification.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Logging contains logging configuration.
	Logging LoggingConfig

	// Tracing contains trace export configuration.
	Tracing TracingConfig

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`

	// Format specifies the log format (console, json).
	Format string `toml:"format"`

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string `toml:"output"`

	// EnableCaller adds file:line caller information to logs.
	EnableCaller bool `toml:"caller"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool `toml:"enabled"`

	// Exporter specifies the trace exporter (stdout, none).
	Exporter string `toml:"exporter"`

	// SamplingRate is the trace sampling rate (0.0 to 1.0).
	SamplingRate float64 `toml:"sampling_rate"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool `toml:"enabled"`

	// ListenAddress is the address for the metrics HTTP endpoint. When
	// empty no listener is started and metrics are collected in-process
	// only.
	ListenAddress string `toml:"listen_address"`

	// Path is the HTTP path for metrics (default: /metrics).
	Path string `toml:"path"`

	// Namespace is the metrics namespace prefix.
	Namespace string `toml:"namespace"`
}

// DefaultConfig returns a default telemetry configuration: console logs
// on stderr, metrics collected but not served, tracing off.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "reeve",
		ServiceVersion: "dev",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "stdout",
			SamplingRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "reeve",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	if c.Tracing.Enabled && c.Tracing.Exporter != "stdout" && c.Tracing.Exporter != "none" {
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}

	return nil
}
