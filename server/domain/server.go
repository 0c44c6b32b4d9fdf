package domain

import "context"

// Server is implemented by every serving strategy.
type Server interface {
	// Serve blocks until ctx is cancelled or a fatal error occurs.
	Serve(ctx context.Context) error
	// Addr is the bound listen address, resolved after Listen.
	Addr() string
	Close() error
}
