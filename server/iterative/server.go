//go:build linux || darwin

// Package iterative serves one client at a time. Further clients wait in the
// kernel's accept queue until the current one disconnects.
package iterative

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	adaptertcp "socketcalc/server/adapter/tcp"
	"socketcalc/server/domain"
	"socketcalc/server/socket"
	"socketcalc/server/stream"
)

var (
	ErrHandlerRequired = errors.New("iterative: handler is required")
	ErrAlreadyStarted  = errors.New("iterative: serve called multiple times")
)

const backlog = 1

type Config struct {
	Host string
	Port int

	Handler domain.Handler
	Metrics domain.MetricsRecorder

	IdleTimeout time.Duration
}

type Server struct {
	ln      net.Listener
	handler domain.Handler
	metrics domain.MetricsRecorder
	opts    stream.Options

	started atomic.Bool
}

var _ domain.Server = (*Server)(nil)

func New(cfg Config) (*Server, error) {
	if cfg.Handler == nil {
		return nil, ErrHandlerRequired
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	raw, err := socket.Listen(cfg.Host, cfg.Port, socket.Options{Backlog: backlog})
	if err != nil {
		return nil, err
	}
	ln, err := raw.NetListener()
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Server{
		ln:      ln,
		handler: cfg.Handler,
		metrics: metrics,
		opts:    stream.Options{IdleTimeout: cfg.IdleTimeout},
	}, nil
}

func (s *Server) Addr() string { return s.ln.Addr().String() }
func (s *Server) Close() error { return s.ln.Close() }

// Serve accepts a connection, serves it until it ends and only then accepts
// the next one.
func (s *Server) Serve(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	stop := context.AfterFunc(ctx, func() { _ = s.ln.Close() })
	defer stop()
	defer s.ln.Close()

	slog.InfoContext(ctx, "iterative server listening", "addr", s.Addr())
	var backoff socket.AcceptBackoff
	for {
		slog.DebugContext(ctx, "waiting for a new client connection")
		c, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				slog.InfoContext(ctx, "iterative server shutting down")
				return nil
			}
			slog.WarnContext(ctx, "accept failed, backing off", "err", err)
			if !backoff.Wait(ctx) {
				slog.InfoContext(ctx, "iterative server shutting down")
				return nil
			}
			continue
		}
		backoff.Reset()

		conn, err := domain.NewConnection(adaptertcp.NewTransportFrom(c))
		if err != nil {
			_ = c.Close()
			slog.ErrorContext(ctx, "failed to create connection", "err", err)
			continue
		}
		s.metrics.IncrementCounter(ctx, "connections.accepted", 1)
		slog.InfoContext(ctx, "accepted connection", "conn_id", conn.ID, "peer", conn.Peer())

		reason := stream.Serve(ctx, conn, s.handler, s.opts)
		s.metrics.IncrementCounter(ctx, "connections.closed."+reason.String(), 1)
	}
}
