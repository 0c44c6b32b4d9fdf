//go:build linux || darwin

// Package threaded serves each accepted connection on its own goroutine.
package threaded

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	adaptertcp "socketcalc/server/adapter/tcp"
	"socketcalc/server/domain"
	"socketcalc/server/socket"
	"socketcalc/server/stream"
)

var (
	ErrHandlerRequired = errors.New("threaded: handler is required")
	ErrAlreadyStarted  = errors.New("threaded: serve called multiple times")
)

const backlog = 5

type Config struct {
	Host string
	Port int

	Handler domain.Handler
	Metrics domain.MetricsRecorder

	IdleTimeout time.Duration
	// MaxConns caps concurrently served connections. Zero means no cap.
	MaxConns int
}

type Server struct {
	ln      net.Listener
	handler domain.Handler
	metrics domain.MetricsRecorder
	opts    stream.Options
	sem     *semaphore.Weighted

	active  atomic.Int64
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
	s := &Server{
		ln:      ln,
		handler: cfg.Handler,
		metrics: metrics,
		opts:    stream.Options{IdleTimeout: cfg.IdleTimeout},
	}
	if cfg.MaxConns > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConns))
	}
	return s, nil
}

func (s *Server) Addr() string { return s.ln.Addr().String() }
func (s *Server) Close() error { return s.ln.Close() }

// Active is the number of connections currently being served.
func (s *Server) Active() int64 { return s.active.Load() }

// Serve runs the accept loop. Connection goroutines are not waited for: once
// ctx is done they are closed and Serve returns immediately.
func (s *Server) Serve(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	stop := context.AfterFunc(ctx, func() { _ = s.ln.Close() })
	defer stop()
	defer s.ln.Close()

	slog.InfoContext(ctx, "threaded server listening", "addr", s.Addr())
	var backoff socket.AcceptBackoff
	for {
		if s.sem != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				slog.InfoContext(ctx, "threaded server shutting down")
				return nil
			}
		}
		c, err := s.ln.Accept()
		if err != nil {
			s.release()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				slog.InfoContext(ctx, "threaded server shutting down")
				return nil
			}
			slog.WarnContext(ctx, "accept failed, backing off", "err", err)
			if !backoff.Wait(ctx) {
				slog.InfoContext(ctx, "threaded server shutting down")
				return nil
			}
			continue
		}
		backoff.Reset()

		conn, err := domain.NewConnection(adaptertcp.NewTransportFrom(c))
		if err != nil {
			s.release()
			_ = c.Close()
			slog.ErrorContext(ctx, "failed to create connection", "err", err)
			continue
		}
		s.metrics.IncrementCounter(ctx, "connections.accepted", 1)
		slog.InfoContext(ctx, "accepted connection", "conn_id", conn.ID, "peer", conn.Peer())

		s.active.Add(1)
		go func() {
			defer s.release()
			defer s.active.Add(-1)
			reason := stream.Serve(ctx, conn, s.handler, s.opts)
			s.metrics.IncrementCounter(ctx, "connections.closed."+reason.String(), 1)
		}()
	}
}

func (s *Server) release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}
