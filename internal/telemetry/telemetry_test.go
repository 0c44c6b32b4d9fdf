package telemetry_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log/global"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"socketcalc/internal/telemetry"
)

func TestFanoutRoutesByLevel(t *testing.T) {
	var all, warn bytes.Buffer
	h := telemetry.NewFanout(slog.LevelInfo,
		slog.NewTextHandler(&all, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("conn_id", "abc")

	logger.Debug("dropped")
	logger.Info("accepted connection")
	logger.Warn("read failed")

	if strings.Contains(all.String(), "dropped") {
		t.Errorf("debug record passed the fanout level: %q", all.String())
	}
	if !strings.Contains(all.String(), "accepted connection") || !strings.Contains(all.String(), "read failed") {
		t.Errorf("first handler output = %q", all.String())
	}
	if strings.Contains(warn.String(), "accepted connection") || !strings.Contains(warn.String(), "read failed") {
		t.Errorf("second handler output = %q", warn.String())
	}
	if !strings.Contains(warn.String(), "conn_id=abc") {
		t.Errorf("attributes were not propagated: %q", warn.String())
	}
}

func TestFanoutGroups(t *testing.T) {
	var buf bytes.Buffer
	h := telemetry.NewFanout(nil, slog.NewTextHandler(&buf, nil))
	slog.New(h).WithGroup("peer").Info("hello", "addr", "127.0.0.1:1")

	if !strings.Contains(buf.String(), "peer.addr=127.0.0.1:1") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSetupWithoutExporter(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	shutdown, err := telemetry.Setup(context.Background(), telemetry.Config{
		ServiceName: "calcd",
		LogLevel:    slog.LevelWarn,
		Writer:      &buf,
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	slog.Info("quiet")
	slog.Warn("loud", "peer", "127.0.0.1:9")

	if strings.Contains(buf.String(), "quiet") {
		t.Errorf("info record logged at warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "loud") {
		t.Errorf("warn record missing: %q", buf.String())
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetupWithExporterInstallsProviders(t *testing.T) {
	prevLogger := slog.Default()
	prevTracer := otel.GetTracerProvider()
	prevMeter := otel.GetMeterProvider()
	prevLog := global.GetLoggerProvider()
	t.Cleanup(func() {
		slog.SetDefault(prevLogger)
		otel.SetTracerProvider(prevTracer)
		otel.SetMeterProvider(prevMeter)
		global.SetLoggerProvider(prevLog)
	})
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://127.0.0.1:4317")

	var buf bytes.Buffer
	shutdown, err := telemetry.Setup(context.Background(), telemetry.Config{
		ServiceName:  "calcd",
		OTLPEndpoint: "http://127.0.0.1:4317",
		LogLevel:     slog.LevelInfo,
		Writer:       &buf,
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() {
		// nothing listens on the collector port, so the final flush may fail
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		_ = shutdown(ctx)
	})

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Errorf("tracer provider = %T, want *sdktrace.TracerProvider", otel.GetTracerProvider())
	}
	if _, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider); !ok {
		t.Errorf("meter provider = %T, want *sdkmetric.MeterProvider", otel.GetMeterProvider())
	}

	slog.Info("exported")
	if !strings.Contains(buf.String(), "exported") {
		t.Errorf("text handler output = %q", buf.String())
	}
}
