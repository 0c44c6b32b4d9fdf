package domain

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type ConnectionID string

func (id ConnectionID) String() string { return string(id) }

// Session holds the logical state of one connection: when it last sent a
// request and whether it has been closed.
type Session struct {
	id ConnectionID

	// activity
	lastRead atomic.Int64

	// lifecycle
	closed      atomic.Bool
	closeReason atomic.Uint32
}

func NewSession() *Session {
	s := &Session{
		id: ConnectionID(uuid.NewString()),
	}
	s.lastRead.Store(time.Now().UnixNano())
	return s
}

func (s *Session) ID() ConnectionID { return s.id }

func (s *Session) TouchRead() {
	s.lastRead.Store(time.Now().UnixNano())
}

// Close marks the session closed. Only the first call succeeds.
func (s *Session) Close(reason CloseReason) bool {
	if s.closed.CompareAndSwap(false, true) {
		s.closeReason.Store(uint32(reason))
		return true
	}
	return false
}

func (s *Session) CloseReason() CloseReason {
	return CloseReason(s.closeReason.Load())
}

func (s *Session) IsIdle(timeout time.Duration) (bool, IdleReason) {
	if timeout <= 0 {
		return false, IdleDisabled
	}
	if s.IsReadIdle(timeout) {
		return true, IdleRead
	}
	return false, IdleNone
}

func (s *Session) IsReadIdle(timeout time.Duration) bool {
	return isIdleSince(unixNanoToTime(s.lastRead.Load()), timeout)
}

func isIdleSince(last time.Time, timeout time.Duration) bool {
	return time.Since(last) > timeout
}

func unixNanoToTime(nano int64) time.Time {
	return time.Unix(0, nano)
}
