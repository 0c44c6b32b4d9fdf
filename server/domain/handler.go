package domain

import (
	"context"
	"errors"
	"fmt"
)

//go:generate go tool mockgen -destination=./mocks/handler_mock.go -package=mocks . Handler

var ErrUnknownHandler = errors.New("unknown handler kind")

// Handler maps one request to one response. Implementations must not block on I/O:
// the multiplexing loop calls them inline.
type Handler interface {
	Handle(ctx context.Context, request []byte) []byte
}

type HandlerFunc func(ctx context.Context, request []byte) []byte

func (f HandlerFunc) Handle(ctx context.Context, request []byte) []byte {
	return f(ctx, request)
}

type HandlerKind string

const (
	HandlerCalculator HandlerKind = "calc"
	HandlerEcho       HandlerKind = "echo"
)

// NewHandler returns the handler for kind. The choice is fixed for the life of a server.
func NewHandler(kind HandlerKind) (Handler, error) {
	switch kind {
	case HandlerCalculator:
		return Calculator{}, nil
	case HandlerEcho:
		return Echo{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, kind)
	}
}
