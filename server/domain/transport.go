package domain

import (
	"context"
)

//go:generate go tool mockgen -destination=./mocks/transport_mock.go -package=mocks . Transport

// MaxRequestSize is the most a single Read hands to a Handler. One read is one request.
const MaxRequestSize = 1024

// Transport is the I/O boundary a Connection depends on.
type Transport interface {
	// Read returns the bytes of one request, or io.EOF once the peer has closed.
	Read(ctx context.Context) (data []byte, err error)
	// Write flushes data completely or fails.
	Write(ctx context.Context, data []byte) error
	Close() error
	RemoteAddr() string
}
