// Package instrumentation sets up OpenTelemetry metrics for the service:
// HTTP request counts and latencies, provider-call outcomes, token refresh
// results, and partial-fetch drops. Metrics are exported through Prometheus
// by default, with OTLP and stdout exporters available for other setups.
package instrumentation

import (
	"os"
	"strconv"
)

// Exporter types for metrics.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
)

// Config holds the instrumentation configuration.
type Config struct {
	// ServiceName is the name reported in the OTel resource.
	ServiceName string

	// ServiceVersion is the build version.
	ServiceVersion string

	// Enabled determines if instrumentation is active. When false the
	// provider hands out no-op recorders.
	Enabled bool

	// MetricsExporter selects prometheus, otlp, or stdout.
	MetricsExporter string

	// OTLPEndpoint is the collector endpoint for the otlp exporter,
	// host:port without a protocol prefix.
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP export. Development only.
	OTLPInsecure bool
}

// ConfigFromEnv builds a Config from environment variables with defaults
// suitable for production.
func ConfigFromEnv(serviceName, serviceVersion string) Config {
	cfg := Config{
		ServiceName:     serviceName,
		ServiceVersion:  serviceVersion,
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
	}
	if v := os.Getenv("INSTRUMENTATION_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Enabled = enabled
		}
	}
	if v := os.Getenv("METRICS_EXPORTER"); v != "" {
		cfg.MetricsExporter = v
	}
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if v := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		if insecure, err := strconv.ParseBool(v); err == nil {
			cfg.OTLPInsecure = insecure
		}
	}
	return cfg
}
