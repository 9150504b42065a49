// Package observability installs the process-wide slog logger, either as a plain
// text/JSON handler or bridged into an OpenTelemetry log pipeline.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ScopeName identifies log records emitted through the OpenTelemetry bridge.
const ScopeName = "github.com/florianilch/storefront"

// Log exporters. An empty exporter keeps logging local.
const (
	ExporterNone     = ""
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// Telemetry selects where log records are exported.
type Telemetry struct {
	Exporter string
	// Endpoint is the collector URL for the OTLP exporters. When empty the
	// OTEL_EXPORTER_OTLP_* environment variables apply.
	Endpoint string
}

// ShutdownFunc flushes and stops the logging pipeline.
type ShutdownFunc func(context.Context) error

// Instrument installs the default logger and the W3C trace context propagator.
// format is "text" or "json" and only applies when no exporter is configured.
func Instrument(ctx context.Context, level slog.Level, format string, telemetry Telemetry) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if telemetry.Exporter == ExporterNone {
		handler, err := NewHandler(os.Stderr, level, format)
		if err != nil {
			return nil, err
		}
		slog.SetDefault(slog.New(handler))
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, telemetry, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("creating %s log exporter: %w", telemetry.Exporter, err)
	}

	provider := newLoggerProvider(exporter, level)
	slog.SetDefault(slog.New(newBridge(provider)))

	return func(ctx context.Context) error {
		// Restore a local logger so late log calls are not dropped
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return errors.Join(provider.ForceFlush(ctx), provider.Shutdown(ctx))
	}, nil
}

// NewHandler builds a local slog handler for the given format that annotates records
// with the active trace and span ids.
func NewHandler(w io.Writer, level slog.Level, format string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch format {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
	return &traceHandler{Handler: h}, nil
}

func newExporter(ctx context.Context, telemetry Telemetry, stdout io.Writer) (sdklog.Exporter, error) {
	switch telemetry.Exporter {
	case ExporterStdout:
		return stdoutlog.New(stdoutlog.WithWriter(stdout))
	case ExporterOTLPHTTP:
		var opts []otlploghttp.Option
		if telemetry.Endpoint != "" {
			opts = append(opts, otlploghttp.WithEndpointURL(telemetry.Endpoint))
		}
		return otlploghttp.New(ctx, opts...)
	case ExporterOTLPGRPC:
		var opts []otlploggrpc.Option
		if telemetry.Endpoint != "" {
			opts = append(opts, otlploggrpc.WithEndpointURL(telemetry.Endpoint))
		}
		return otlploggrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", telemetry.Exporter)
	}
}

func newLoggerProvider(exporter sdklog.Exporter, level slog.Level) *sdklog.LoggerProvider {
	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(level))
	return sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
}

// newBridge routes slog records into provider.
func newBridge(provider *sdklog.LoggerProvider) slog.Handler {
	return otelslog.NewHandler(ScopeName, otelslog.WithLoggerProvider(provider))
}

// severity maps a slog level onto the OpenTelemetry severity scale for minsev.
type severity slog.Level

func (s severity) Severity() log.Severity {
	switch l := slog.Level(s); {
	case l >= slog.LevelError:
		return log.SeverityError
	case l >= slog.LevelWarn:
		return log.SeverityWarn
	case l >= slog.LevelInfo:
		return log.SeverityInfo
	default:
		return log.SeverityDebug
	}
}
