//go:build linux || darwin

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"socketcalc/server/domain"
	"socketcalc/server/iterative"
	"socketcalc/server/multiplex"
	"socketcalc/server/socket"
	"socketcalc/server/stream"
	"socketcalc/server/threaded"
)

var (
	ErrAlreadyStarted  = errors.New("server: serve called multiple times")
	ErrHandlerRequired = errors.New("server: handler is required")
)

type Config struct {
	Mode Mode
	Host string
	Port int

	Handler domain.Handler
	Metrics domain.MetricsRecorder

	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	MaxConns     int
}

// New binds the listener for the configured mode. The returned server does
// not accept connections until Serve is called.
func New(cfg Config) (domain.Server, error) {
	switch cfg.Mode {
	case ModeIterative:
		return iterative.New(iterative.Config{
			Host:        cfg.Host,
			Port:        cfg.Port,
			Handler:     cfg.Handler,
			Metrics:     cfg.Metrics,
			IdleTimeout: cfg.IdleTimeout,
		})
	case ModeThreaded:
		return threaded.New(threaded.Config{
			Host:        cfg.Host,
			Port:        cfg.Port,
			Handler:     cfg.Handler,
			Metrics:     cfg.Metrics,
			IdleTimeout: cfg.IdleTimeout,
			MaxConns:    cfg.MaxConns,
		})
	case ModeMultiplex:
		return multiplex.New(multiplex.Config{
			Host:         cfg.Host,
			Port:         cfg.Port,
			Handler:      cfg.Handler,
			Metrics:      cfg.Metrics,
			IdleTimeout:  cfg.IdleTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	case ModeWebSocket:
		return NewWebSocketServer(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
}

// WebSocketServer exposes the handler at /ws over HTTP.
type WebSocketServer struct {
	HTTP *http.Server
	ln   net.Listener

	started atomic.Bool
}

var _ domain.Server = (*WebSocketServer)(nil)

func NewWebSocketServer(cfg Config) (*WebSocketServer, error) {
	if cfg.Handler == nil {
		return nil, ErrHandlerRequired
	}
	raw, err := socket.Listen(cfg.Host, cfg.Port, socket.Options{})
	if err != nil {
		return nil, err
	}
	ln, err := raw.NetListener()
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &WebSocketServer{
		HTTP: &http.Server{
			Handler:           Route(cfg.Handler, cfg.Metrics, stream.Options{IdleTimeout: cfg.IdleTimeout}),
			ReadHeaderTimeout: 10 * time.Second,
		},
		ln: ln,
	}, nil
}

func (s *WebSocketServer) Addr() string { return s.ln.Addr().String() }
func (s *WebSocketServer) Close() error { return s.HTTP.Close() }

// Serve blocks until ctx is done. Open sessions are closed, not drained.
func (s *WebSocketServer) Serve(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	s.HTTP.BaseContext = func(net.Listener) context.Context { return ctx }
	stop := context.AfterFunc(ctx, func() { _ = s.HTTP.Close() })
	defer stop()

	slog.InfoContext(ctx, "websocket server listening", "addr", s.Addr())
	if err := s.HTTP.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.InfoContext(ctx, "websocket server shutting down")
	return nil
}
