package domain

import "fmt"

type IdleReason uint8

const (
	IdleNone     IdleReason = 0
	IdleRead     IdleReason = 1 << 0
	IdleDisabled IdleReason = 1 << 7 // timeout <= 0
)

func (r IdleReason) Has(x IdleReason) bool { return r&x != 0 }

func (r IdleReason) String() string {
	if r == IdleNone {
		return "none"
	}
	if r == IdleDisabled {
		return "disabled"
	}
	if r.Has(IdleRead) {
		return "read"
	}
	return fmt.Sprintf("unknown(%d)", r)
}

// CloseReason records why a connection left the server.
type CloseReason uint32

const (
	CloseNone CloseReason = iota
	ClosePeer             // zero-length read
	CloseError            // read or write failure
	CloseExceptional      // exceptional readiness
	CloseIdle
	CloseShutdown
)

func (r CloseReason) String() string {
	switch r {
	case CloseNone:
		return "none"
	case ClosePeer:
		return "peer"
	case CloseError:
		return "error"
	case CloseExceptional:
		return "exceptional"
	case CloseIdle:
		return "idle"
	case CloseShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(r))
	}
}
