// Package observability wires OpenTelemetry tracing. Tracing is optional:
// without a configured endpoint the global tracer stays a no-op and every
// instrumented code path runs unchanged.
//
// Spans are emitted through the global tracer provider, so instrumented
// packages only depend on the otel API, never on this package.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName identifies this service in trace backends.
const DefaultServiceName = "ara"

// Config for the OTLP trace exporter.
type Config struct {
	// Endpoint is the OTLP HTTP host:port, e.g. "localhost:4318".
	// Empty disables tracing entirely.
	Endpoint string

	// ServiceName defaults to DefaultServiceName.
	ServiceName string

	// Environment tags spans with deployment.environment when set.
	Environment string

	Logger *slog.Logger
}

// Setup installs the global tracer provider. The returned shutdown
// function flushes pending spans and must be called before exit. When
// cfg.Endpoint is empty, Setup is a no-op and shutdown does nothing.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Endpoint == "" {
		logger.Debug("tracing disabled: no endpoint configured")
		return func(context.Context) error { return nil }, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(
			semconv.DeploymentEnvironment(cfg.Environment),
		))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("building trace resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", serviceName,
		"environment", cfg.Environment)

	return provider.Shutdown, nil
}
