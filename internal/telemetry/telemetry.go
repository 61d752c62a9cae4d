// Package telemetry installs the process-wide OpenTelemetry tracer provider.
//
// With an OTLP endpoint configured, spans are batched to a gRPC collector;
// otherwise the global provider is left as the no-op default so the
// instrumented store and scheduler pay nothing.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"datahandler/internal/config"
	"datahandler/internal/logging"
)

// Shutdown flushes and stops the installed provider.
type Shutdown func(ctx context.Context)

// Enabled reports whether cfg asks for trace export.
func Enabled(cfg config.Telemetry) bool {
	return cfg.OTLPEndpoint != ""
}

// Init installs a tracer provider for component. The returned Shutdown is
// always safe to call.
func Init(ctx context.Context, cfg config.Telemetry, component string, logger *slog.Logger) (Shutdown, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if !Enabled(cfg) {
		return func(context.Context) {}, nil
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.ServiceName),
		attribute.String("datahandler.component", component),
	)

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exporter, err := otlptracegrpc.New(dialCtx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
			sdktrace.WithMaxQueueSize(2048),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	logger.Info("trace export enabled",
		logging.String("endpoint", cfg.OTLPEndpoint),
		logging.Any("sample_ratio", cfg.SampleRatio),
	)

	return func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("tracer provider shutdown failed", logging.Error(err))
		}
	}, nil
}
