package adaptertcp

import (
	"context"
	"io"
	"net"
	"time"

	"socketcalc/server/domain"
)

type tcpTransport struct {
	conn net.Conn
}

func NewTransportFrom(conn net.Conn) domain.Transport {
	return &tcpTransport{conn: conn}
}

// Read returns what a single read produced, at most domain.MaxRequestSize
// bytes. A ctx deadline becomes the socket read deadline.
func (t *tcpTransport) Read(ctx context.Context) ([]byte, error) {
	if err := t.conn.SetReadDeadline(deadline(ctx)); err != nil {
		return nil, err
	}
	buf := make([]byte, domain.MaxRequestSize)
	n, err := t.conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		err = io.EOF
	}
	return nil, err
}

func (t *tcpTransport) Write(ctx context.Context, data []byte) error {
	if err := t.conn.SetWriteDeadline(deadline(ctx)); err != nil {
		return err
	}
	_, err := t.conn.Write(data)
	return err
}

func (t *tcpTransport) Close() error       { return t.conn.Close() }
func (t *tcpTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }

func deadline(ctx context.Context) time.Time {
	d, _ := ctx.Deadline()
	return d
}
