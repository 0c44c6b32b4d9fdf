package domain

import (
	"context"
	"errors"
)

// ErrInitializationFailed is returned when a connection is built without a transport.
var ErrInitializationFailed = errors.New("failed to initialize connection")

// Connection is one accepted peer. It is owned by exactly one goroutine for its whole life.
type Connection struct {
	ID ConnectionID

	session   *Session
	transport Transport
	peer      string
}

func NewConnection(transport Transport) (*Connection, error) {
	if transport == nil {
		return nil, ErrInitializationFailed
	}
	session := NewSession()
	return &Connection{
		ID:        session.ID(),
		session:   session,
		transport: transport,
		peer:      transport.RemoteAddr(),
	}, nil
}

func (c *Connection) Read(ctx context.Context) ([]byte, error) {
	data, err := c.transport.Read(ctx)
	if err != nil {
		return nil, err
	}
	c.session.TouchRead()
	return data, nil
}

func (c *Connection) Write(ctx context.Context, data []byte) error {
	return c.transport.Write(ctx, data)
}

// Close closes the underlying transport the first time it is called and
// reports whether this call did so.
func (c *Connection) Close(reason CloseReason) bool {
	if !c.session.Close(reason) {
		return false
	}
	_ = c.transport.Close()
	return true
}

func (c *Connection) Peer() string       { return c.peer }
func (c *Connection) Session() *Session { return c.session }
