package server

import (
	"errors"
	"fmt"
)

var ErrUnknownMode = errors.New("server: unknown mode")

// Mode selects the concurrency strategy.
type Mode string

const (
	ModeIterative Mode = "iterative"
	ModeThreaded  Mode = "threaded"
	ModeMultiplex Mode = "multiplex"
	ModeWebSocket Mode = "websocket"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeIterative, ModeThreaded, ModeMultiplex, ModeWebSocket:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}
