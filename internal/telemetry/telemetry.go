// Package telemetry configures logging, tracing and metrics for calcd.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const instrumentationName = "socketcalc"

type Config struct {
	ServiceName string
	// OTLPEndpoint enables export when non-empty. The exporters read the
	// endpoint themselves from OTEL_EXPORTER_OTLP_ENDPOINT.
	OTLPEndpoint string
	LogLevel     slog.Level
	// Writer receives text logs. Defaults to os.Stderr.
	Writer io.Writer
}

type ShutdownFunc func(context.Context) error

// Setup installs the default slog logger and, when export is enabled, the
// global tracer, meter and logger providers. The returned func flushes
// exporters.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	text := slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel})
	if cfg.OTLPEndpoint == "" {
		slog.SetDefault(slog.New(text))
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	logExporter, err := otlploggrpc.New(ctx)
	if err != nil {
		_ = errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
		return nil, fmt.Errorf("telemetry: log exporter: %w", err)
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)
	bridge := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(lp))
	slog.SetDefault(slog.New(NewFanout(cfg.LogLevel, text, bridge)))

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx), lp.Shutdown(ctx))
	}, nil
}
