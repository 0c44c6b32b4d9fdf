// Package client talks to a calcd server over TCP or WebSocket.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/coder/websocket"

	"socketcalc/server/domain"
)

var ErrServerClosed = errors.New("client: server closed the connection")

// Conn exchanges one request for one reply.
type Conn interface {
	Exchange(ctx context.Context, request string) (string, error)
	Close() error
}

// Dial connects to addr ("host:port") over TCP, or over WebSocket at
// ws://addr/ws when ws is set.
func Dial(ctx context.Context, addr string, ws bool) (Conn, error) {
	if ws {
		c, _, err := websocket.Dial(ctx, "ws://"+addr+"/ws", nil)
		if err != nil {
			return nil, fmt.Errorf("client: dial %s: %w", addr, err)
		}
		return &wsConn{conn: c}, nil
	}
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return &tcpConn{conn: c, buf: make([]byte, domain.MaxRequestSize)}, nil
}

type tcpConn struct {
	conn net.Conn
	buf  []byte
}

func (c *tcpConn) Exchange(ctx context.Context, request string) (string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}
	if _, err := io.WriteString(c.conn, request); err != nil {
		return "", err
	}
	n, err := c.conn.Read(c.buf)
	if errors.Is(err, io.EOF) || (err == nil && n == 0) {
		return "", ErrServerClosed
	}
	if err != nil {
		return "", err
	}
	return string(c.buf[:n]), nil
}

func (c *tcpConn) Close() error { return c.conn.Close() }

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Exchange(ctx context.Context, request string) (string, error) {
	if err := c.conn.Write(ctx, websocket.MessageText, []byte(request)); err != nil {
		return "", err
	}
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) != -1 {
			return "", ErrServerClosed
		}
		return "", err
	}
	return string(data), nil
}

func (c *wsConn) Close() error { return c.conn.Close(websocket.StatusNormalClosure, "") }
