// Package stream runs the blocking request cycle for a connection that is
// owned by a single goroutine.
package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"socketcalc/server/domain"
)

type Options struct {
	// IdleTimeout bounds the wait for each request. Zero waits forever.
	IdleTimeout time.Duration
}

// Serve reads one request at a time from conn, answers it through h and
// repeats until the peer closes, an I/O error occurs, the connection idles
// out or ctx is done. conn is closed when Serve returns.
func Serve(ctx context.Context, conn *domain.Connection, h domain.Handler, opts Options) domain.CloseReason {
	stop := context.AfterFunc(ctx, func() {
		conn.Close(domain.CloseShutdown)
	})
	defer stop()

	for {
		data, err := read(ctx, conn, opts.IdleTimeout)
		if err != nil {
			reason := classify(ctx, err)
			switch reason {
			case domain.ClosePeer:
				slog.InfoContext(ctx, "client disconnected", "conn_id", conn.ID, "peer", conn.Peer())
			case domain.CloseIdle:
				slog.InfoContext(ctx, "closing idle connection", "conn_id", conn.ID, "peer", conn.Peer())
			case domain.CloseError:
				slog.WarnContext(ctx, "read failed, closing connection", "conn_id", conn.ID, "peer", conn.Peer(), "err", err)
			}
			conn.Close(reason)
			return conn.Session().CloseReason()
		}

		slog.DebugContext(ctx, "received request", "conn_id", conn.ID, "peer", conn.Peer(), "request", string(data))
		resp := h.Handle(ctx, data)
		if err := conn.Write(ctx, resp); err != nil {
			if ctx.Err() == nil {
				slog.WarnContext(ctx, "write failed, closing connection", "conn_id", conn.ID, "peer", conn.Peer(), "err", err)
			}
			conn.Close(domain.CloseError)
			return conn.Session().CloseReason()
		}
		slog.DebugContext(ctx, "sent reply", "conn_id", conn.ID, "peer", conn.Peer(), "reply", string(resp))
	}
}

func read(ctx context.Context, conn *domain.Connection, idle time.Duration) ([]byte, error) {
	if idle <= 0 {
		return conn.Read(ctx)
	}
	readCtx, cancel := context.WithTimeout(ctx, idle)
	defer cancel()
	return conn.Read(readCtx)
}

func classify(ctx context.Context, err error) domain.CloseReason {
	switch {
	case ctx.Err() != nil:
		return domain.CloseShutdown
	case errors.Is(err, io.EOF):
		return domain.ClosePeer
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return domain.CloseIdle
	default:
		return domain.CloseError
	}
}
