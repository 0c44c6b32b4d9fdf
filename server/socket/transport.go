//go:build linux || darwin

package socket

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"socketcalc/server/domain"
)

var ErrWriteTimeout = errors.New("socket: write did not complete before timeout")

// FDTransport is a domain.Transport over a raw socket descriptor. Reads are
// single calls; writes loop until every byte has been accepted by the kernel.
type FDTransport struct {
	fd           int
	peer         string
	writeTimeout time.Duration
	closed       atomic.Bool
}

var _ domain.Transport = (*FDTransport)(nil)

func newFDTransport(fd int, peer string, writeTimeout time.Duration) *FDTransport {
	return &FDTransport{fd: fd, peer: peer, writeTimeout: writeTimeout}
}

func (t *FDTransport) Fd() int            { return t.fd }
func (t *FDTransport) RemoteAddr() string { return t.peer }

// Read performs exactly one read of at most domain.MaxRequestSize bytes.
// A zero-length read is reported as io.EOF.
func (t *FDTransport) Read(ctx context.Context) ([]byte, error) {
	buf := make([]byte, domain.MaxRequestSize)
	for {
		n, err := unix.Read(t.fd, buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, io.EOF
		}
		return buf[:n], nil
	}
}

// Write flushes data completely. When the send buffer is full it waits for
// the socket to become writable, bounded by the write timeout and ctx.
func (t *FDTransport) Write(ctx context.Context, data []byte) error {
	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for len(data) > 0 {
		n, err := unix.Write(t.fd, data)
		switch {
		case err == nil:
			data = data[n:]
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
			if err := t.waitWritable(ctx, deadline); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

func (t *FDTransport) waitWritable(ctx context.Context, deadline time.Time) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrWriteTimeout
		}
		fds := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(fds, int(remaining.Milliseconds())+1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
	}
}

func (t *FDTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(t.fd)
}
