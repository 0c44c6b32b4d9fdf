//go:build linux || darwin

// Package multiplex serves every connection from a single goroutine that
// waits on poll(2) for readiness and runs each read, handle and write cycle
// inline.
package multiplex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"socketcalc/server/domain"
	"socketcalc/server/socket"
)

var (
	ErrHandlerRequired = errors.New("multiplex: handler is required")
	ErrAlreadyStarted  = errors.New("multiplex: serve called multiple times")
	ErrListenerFailed  = errors.New("multiplex: listening socket reported an error")
)

// Config controls the behaviour of the event loop.
type Config struct {
	Host    string
	Port    int
	Backlog int

	Handler domain.Handler
	Metrics domain.MetricsRecorder

	// IdleTimeout closes connections that have not sent a request for this
	// long. Zero keeps connections open until the peer leaves.
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

// Loop owns the listening socket, the registry and a wake-up pipe used to
// interrupt poll on shutdown.
type Loop struct {
	listener *socket.Listener
	registry *Registry
	handler  domain.Handler
	metrics  domain.MetricsRecorder

	idleTimeout time.Duration

	// accepts are paused until acceptResumeAt after a failure that does
	// not clear on its own
	acceptBackoff  socket.AcceptBackoff
	acceptResumeAt time.Time

	wakeR, wakeW int

	started   atomic.Bool
	closeOnce sync.Once
}

var _ domain.Server = (*Loop)(nil)

// New binds the listening socket. Bind and listen failures are returned here
// so that callers can treat them as fatal startup errors.
func New(cfg Config) (*Loop, error) {
	if cfg.Handler == nil {
		return nil, ErrHandlerRequired
	}
	backlog := cfg.Backlog
	if backlog <= 0 {
		backlog = 5
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}

	ln, err := socket.Listen(cfg.Host, cfg.Port, socket.Options{
		Backlog:      backlog,
		NonBlocking:  true,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err != nil {
		return nil, err
	}

	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("multiplex: wake pipe: %w", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		_ = unix.SetNonblock(fd, true)
	}

	return &Loop{
		listener:    ln,
		registry:    NewRegistry(ln.Fd()),
		handler:     cfg.Handler,
		metrics:     metrics,
		idleTimeout: cfg.IdleTimeout,
		wakeR:       p[0],
		wakeW:       p[1],
	}, nil
}

func (l *Loop) Addr() string { return l.listener.Addr() }

// Serve runs the loop until ctx is cancelled, then closes every connection
// and the listener without waiting for in-flight clients.
func (l *Loop) Serve(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer l.Close()
	stop := l.wakeOnDone(ctx)
	defer stop()

	slog.InfoContext(ctx, "multiplex server listening", "addr", l.Addr())
	for {
		fds, timeout := l.pollSet(time.Now())
		n, err := unix.Poll(fds, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("multiplex: poll: %w", err)
		}
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "multiplex server shutting down", "clients", l.registry.Len()-1)
			return nil
		}
		if n > 0 {
			if err := l.dispatch(ctx, fds[:len(fds)-1]); err != nil {
				return err
			}
		}
		l.closeIdle(ctx)
	}
}

type readyConn struct {
	fd   int
	conn *domain.Connection
}

// dispatch handles one poll result. Readable sockets are served first, then
// exceptional ones are evicted. An exceptional entry is skipped if its
// connection has already left the registry in the readable pass.
func (l *Loop) dispatch(ctx context.Context, fds []unix.PollFd) error {
	var exceptional []readyConn
	for _, p := range fds {
		if p.Revents == 0 {
			continue
		}
		fd := int(p.Fd)
		if l.registry.IsListener(fd) {
			if p.Revents&exceptionalEvents != 0 {
				return fmt.Errorf("%w: revents=%#x", ErrListenerFailed, p.Revents)
			}
			l.accept(ctx)
			continue
		}
		conn, ok := l.registry.Lookup(fd)
		if !ok {
			continue
		}
		if p.Revents&exceptionalEvents != 0 {
			exceptional = append(exceptional, readyConn{fd: fd, conn: conn})
		}
		if p.Revents&readableEvents != 0 {
			l.serveOne(ctx, fd, conn)
		}
	}

	for _, rc := range exceptional {
		if cur, ok := l.registry.Lookup(rc.fd); !ok || cur != rc.conn {
			continue
		}
		slog.WarnContext(ctx, "exceptional condition, closing connection", "conn_id", rc.conn.ID, "peer", rc.conn.Peer())
		l.evict(ctx, rc.fd, domain.CloseExceptional)
	}
	return nil
}

// accept takes at most one pending connection. A readiness signal with
// nothing left to accept is not an error.
func (l *Loop) accept(ctx context.Context) {
	now := time.Now()
	if now.Before(l.acceptResumeAt) {
		return
	}
	tr, err := l.listener.Accept()
	if err != nil {
		if socket.IsTemporary(err) {
			return
		}
		delay := l.backOffAccept(now)
		slog.WarnContext(ctx, "accept failed, backing off", "err", err, "retry_in", delay)
		return
	}
	l.acceptBackoff.Reset()
	conn, err := domain.NewConnection(tr)
	if err != nil {
		_ = tr.Close()
		slog.ErrorContext(ctx, "failed to create connection", "err", err)
		return
	}
	if err := l.registry.Register(tr.Fd(), conn); err != nil {
		conn.Close(domain.CloseError)
		slog.ErrorContext(ctx, "failed to register connection", "fd", tr.Fd(), "err", err)
		return
	}
	l.metrics.IncrementCounter(ctx, "connections.accepted", 1)
	slog.InfoContext(ctx, "accepted connection", "conn_id", conn.ID, "peer", conn.Peer())
}

// serveOne performs one bounded read and, if it produced data, answers it
// before returning.
func (l *Loop) serveOne(ctx context.Context, fd int, conn *domain.Connection) {
	data, err := conn.Read(ctx)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		slog.InfoContext(ctx, "client disconnected", "conn_id", conn.ID, "peer", conn.Peer())
		l.evict(ctx, fd, domain.ClosePeer)
		return
	case socket.IsTemporary(err):
		return
	default:
		slog.WarnContext(ctx, "read failed, closing connection", "conn_id", conn.ID, "peer", conn.Peer(), "err", err)
		l.evict(ctx, fd, domain.CloseError)
		return
	}

	slog.DebugContext(ctx, "received request", "conn_id", conn.ID, "peer", conn.Peer(), "request", string(data))
	resp := l.handler.Handle(ctx, data)
	if err := conn.Write(ctx, resp); err != nil {
		slog.WarnContext(ctx, "write failed, closing connection", "conn_id", conn.ID, "peer", conn.Peer(), "err", err)
		l.evict(ctx, fd, domain.CloseError)
		return
	}
	slog.DebugContext(ctx, "sent reply", "conn_id", conn.ID, "peer", conn.Peer(), "reply", string(resp))
}

func (l *Loop) evict(ctx context.Context, fd int, reason domain.CloseReason) {
	conn, err := l.registry.Unregister(fd)
	if err != nil {
		slog.ErrorContext(ctx, "evict of unknown socket", "fd", fd, "err", err)
		return
	}
	conn.Close(reason)
	l.metrics.IncrementCounter(ctx, "connections.closed."+reason.String(), 1)
}

func (l *Loop) closeIdle(ctx context.Context) {
	if l.idleTimeout <= 0 {
		return
	}
	for _, fd := range l.registry.Clients() {
		conn, _ := l.registry.Lookup(fd)
		if ok, reason := conn.Session().IsIdle(l.idleTimeout); ok && reason.Has(domain.IdleRead) {
			slog.InfoContext(ctx, "closing idle connection", "conn_id", conn.ID, "peer", conn.Peer(), "idle", reason)
			l.evict(ctx, fd, domain.CloseIdle)
		}
	}
}

// backOffAccept pauses accepting for the next backoff delay.
func (l *Loop) backOffAccept(now time.Time) time.Duration {
	delay := l.acceptBackoff.Next()
	l.acceptResumeAt = now.Add(delay)
	return delay
}

// pollSet builds the descriptors and timeout for the next poll. The wake pipe
// goes last. While accepts are paused the listener is watched for errors
// only, and the timeout is cut so the pause ends on time.
func (l *Loop) pollSet(now time.Time) ([]unix.PollFd, int) {
	fds := append(l.registry.Snapshot(), unix.PollFd{Fd: int32(l.wakeR), Events: unix.POLLIN})
	timeout := l.pollTimeout()
	if wait := l.acceptResumeAt.Sub(now); wait > 0 {
		fds[0].Events = 0
		ms := int((wait + time.Millisecond - 1) / time.Millisecond)
		if timeout < 0 || ms < timeout {
			timeout = ms
		}
	}
	return fds, timeout
}

func (l *Loop) pollTimeout() int {
	if l.idleTimeout <= 0 {
		return -1
	}
	d := min(l.idleTimeout/2, time.Second)
	return max(int(d.Milliseconds()), 1)
}

// wakeOnDone writes to the wake pipe once ctx is done. The returned stop
// function waits for the watcher to exit so the pipe can be closed safely.
func (l *Loop) wakeOnDone(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			_, _ = unix.Write(l.wakeW, []byte{0})
		case <-done:
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// Close releases every socket. It must not be called while Serve is
// running; cancel the Serve context instead.
func (l *Loop) Close() error {
	var err error
	l.closeOnce.Do(func() {
		ctx := context.Background()
		for _, fd := range l.registry.Clients() {
			l.evict(ctx, fd, domain.CloseShutdown)
		}
		err = l.listener.Close()
		_ = unix.Close(l.wakeR)
		_ = unix.Close(l.wakeW)
	})
	return err
}
