//go:build linux || darwin

package multiplex

import (
	"errors"
	"slices"

	"golang.org/x/sys/unix"

	"socketcalc/server/domain"
)

var (
	ErrAlreadyRegistered = errors.New("registry: socket already registered")
	ErrNotRegistered     = errors.New("registry: socket not registered")
)

const (
	pollInterest      = unix.POLLIN | unix.POLLPRI
	readableEvents    = unix.POLLIN | unix.POLLHUP
	exceptionalEvents = unix.POLLERR | unix.POLLNVAL | unix.POLLPRI
)

// Registry is the set of sockets the event loop polls: the listener, which
// is a member for the registry's whole life, plus every accepted connection
// that has not been removed yet. It is not safe for concurrent use; only the
// loop goroutine touches it.
type Registry struct {
	listenFd int
	clients  map[int]*domain.Connection
}

func NewRegistry(listenFd int) *Registry {
	return &Registry{
		listenFd: listenFd,
		clients:  make(map[int]*domain.Connection),
	}
}

func (r *Registry) Register(fd int, conn *domain.Connection) error {
	if fd == r.listenFd {
		return ErrAlreadyRegistered
	}
	if _, ok := r.clients[fd]; ok {
		return ErrAlreadyRegistered
	}
	r.clients[fd] = conn
	return nil
}

// Unregister removes fd and returns its connection. The caller closes it.
// A second Unregister of the same fd fails, so a handle can't be closed twice.
func (r *Registry) Unregister(fd int) (*domain.Connection, error) {
	conn, ok := r.clients[fd]
	if !ok {
		return nil, ErrNotRegistered
	}
	delete(r.clients, fd)
	return conn, nil
}

func (r *Registry) Lookup(fd int) (*domain.Connection, bool) {
	conn, ok := r.clients[fd]
	return conn, ok
}

func (r *Registry) IsListener(fd int) bool { return fd == r.listenFd }

// Len counts every member, the listener included.
func (r *Registry) Len() int { return len(r.clients) + 1 }

// Clients returns the client descriptors in ascending order.
func (r *Registry) Clients() []int {
	fds := make([]int, 0, len(r.clients))
	for fd := range r.clients {
		fds = append(fds, fd)
	}
	slices.Sort(fds)
	return fds
}

// Snapshot builds a fresh poll set from the current membership: the
// listener first, then clients in ascending descriptor order.
func (r *Registry) Snapshot() []unix.PollFd {
	fds := make([]unix.PollFd, 0, r.Len()+1)
	fds = append(fds, unix.PollFd{Fd: int32(r.listenFd), Events: pollInterest})
	for _, fd := range r.Clients() {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: pollInterest})
	}
	return fds
}
