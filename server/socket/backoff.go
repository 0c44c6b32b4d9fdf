package socket

import (
	"context"
	"time"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// AcceptBackoff spaces out accept retries after failures that do not clear
// on their own, such as running out of file descriptors. The zero value is
// ready to use.
type AcceptBackoff struct {
	delay time.Duration
}

// Next returns the delay before the next attempt: 5ms, doubling up to 1s.
func (b *AcceptBackoff) Next() time.Duration {
	if b.delay == 0 {
		b.delay = minAcceptDelay
	} else {
		b.delay = min(2*b.delay, maxAcceptDelay)
	}
	return b.delay
}

// Reset is called after a successful accept.
func (b *AcceptBackoff) Reset() { b.delay = 0 }

// Wait sleeps for Next() and reports false if ctx ended first.
func (b *AcceptBackoff) Wait(ctx context.Context) bool {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
