// Package observability provides OpenTelemetry-based tracing, metrics, and
// structured logging for the indexbag tools.
package observability

import (
	"io"
	"log/slog"
)

// AppMode identifies the application execution mode.
type AppMode string

const (
	// ModeCLI is the one-shot CLI command mode.
	ModeCLI AppMode = "cli"
	// ModeBench is the long-running randomized driver mode.
	ModeBench AppMode = "bench"
)

const (
	// defaultServiceName is the default OTel service name.
	defaultServiceName = "indexbag"

	// defaultShutdownTimeoutSec is the default shutdown timeout in seconds.
	defaultShutdownTimeoutSec = 5
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the semantic version of the running binary.
	ServiceVersion string

	// Mode identifies how the binary was launched.
	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables OTLP export.
	OTLPEndpoint string

	// OTLPHeaders are additional gRPC metadata headers for the OTLP exporter.
	OTLPHeaders map[string]string

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool

	// Prometheus registers a Prometheus reader; Providers.MetricsHandler then
	// serves the scrape endpoint.
	Prometheus bool

	// SampleRatio is the trace sampling ratio (0.0 to 1.0). Zero samples
	// every root span.
	SampleRatio float64

	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level

	// LogJSON enables JSON-formatted log output.
	LogJSON bool

	// LogOutput receives log records. Nil means os.Stderr.
	LogOutput io.Writer

	// ShutdownTimeoutSec is the maximum seconds to wait for flush on shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config with sensible defaults for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
