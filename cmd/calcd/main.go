package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"socketcalc/internal/config"
	"socketcalc/internal/telemetry"
	"socketcalc/server"
	"socketcalc/server/domain"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args)
	if err != nil {
		var defaults config.Config
		fs := config.NewFlagSet("calcd", &defaults)
		if errors.Is(err, flag.ErrHelp) {
			config.Usage(os.Stdout, fs)
			return 0
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		config.Usage(os.Stderr, fs)
		if errors.Is(err, config.ErrFlags) {
			return 2
		}
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:  "calcd",
		OTLPEndpoint: cfg.OTLPEndpoint,
		LogLevel:     cfg.LogLevel,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to set up telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Error("failed to flush telemetry", "err", err)
		}
	}()

	metrics, err := telemetry.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.ErrorContext(ctx, "failed to create metrics", "err", err)
		return 1
	}
	h, err := domain.NewHandler(cfg.Handler)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create handler", "err", err)
		return 1
	}

	srv, err := server.New(server.Config{
		Mode:         cfg.Mode,
		Host:         cfg.Host,
		Port:         cfg.Port,
		Handler:      telemetry.Instrument(h, metrics, otel.GetTracerProvider(), string(cfg.Mode)),
		Metrics:      metrics,
		IdleTimeout:  cfg.IdleTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxConns:     cfg.MaxConns,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to start server",
			"addr", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), "err", err)
		return 1
	}

	slog.InfoContext(ctx, "server listening", "mode", cfg.Mode, "handler", cfg.Handler, "addr", srv.Addr())
	if err := srv.Serve(ctx); err != nil {
		slog.ErrorContext(ctx, "server stopped", "err", err)
		return 1
	}
	slog.InfoContext(ctx, "server shutdown complete")
	return 0
}
