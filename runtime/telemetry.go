package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const instrumentationName = "github.com/BDNK1/ivrflow"

// Telemetry holds the installed OpenTelemetry providers.
type Telemetry struct {
	// LogHandler forwards slog records to the OTLP log exporter. It is nil
	// when no endpoint is configured.
	LogHandler slog.Handler

	shutdowns []func(context.Context) error
}

// SetupTelemetry installs the process-wide tracer and meter providers and a
// logger provider, all exporting over OTLP gRPC. Without an endpoint the
// global no-op providers stay in place.
func SetupTelemetry(ctx context.Context, cfg TelemetryConfig) (*Telemetry, error) {
	t := &Telemetry{}
	if cfg.OTLPEndpoint == "" {
		return t, nil
	}

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}

	traceExporter, err := otlptrace.New(dialCtx, otlptracegrpc.NewClient(traceOpts...))
	if err != nil {
		return nil, fmt.Errorf("create otlp trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	t.shutdowns = append(t.shutdowns, tracerProvider.Shutdown)

	metricExporter, err := otlpmetricgrpc.New(dialCtx, metricOpts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create otlp metric exporter: %w", err), t.Shutdown(ctx))
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)
	t.shutdowns = append(t.shutdowns, meterProvider.Shutdown)

	logExporter, err := otlploggrpc.New(dialCtx, logOpts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create otlp log exporter: %w", err), t.Shutdown(ctx))
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)
	t.shutdowns = append(t.shutdowns, loggerProvider.Shutdown)
	t.LogHandler = otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(loggerProvider))

	return t, nil
}

// Shutdown flushes and stops the providers in reverse installation order.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		errs = append(errs, t.shutdowns[i](ctx))
	}
	t.shutdowns = nil
	return errors.Join(errs...)
}

// Logger returns l with its records also forwarded to the OTLP log exporter.
func (t *Telemetry) Logger(l *slog.Logger) *slog.Logger {
	if t.LogHandler == nil {
		return l
	}
	return slog.New(slogmulti.Fanout(l.Handler(), t.LogHandler))
}
