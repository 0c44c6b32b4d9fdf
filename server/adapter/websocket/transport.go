package adapterwebsocket

import (
	"context"
	"errors"
	"io"

	"github.com/coder/websocket"

	"socketcalc/server/domain"
)

type wsTransport struct {
	conn *websocket.Conn
	peer string
	// replies use the type of the last message read
	msgType websocket.MessageType
}

// NewTransportFrom wraps an accepted WebSocket. Each message is one request;
// messages larger than domain.MaxRequestSize fail the connection.
func NewTransportFrom(conn *websocket.Conn, peer string) domain.Transport {
	conn.SetReadLimit(domain.MaxRequestSize)
	return &wsTransport{conn: conn, peer: peer, msgType: websocket.MessageText}
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, io.EOF
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	t.msgType = typ
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, t.msgType, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}

func (t *wsTransport) RemoteAddr() string { return t.peer }
