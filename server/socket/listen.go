//go:build linux || darwin

// Package socket opens listening sockets directly so that backlog, address
// reuse and blocking mode are set explicitly, and exposes accepted sockets as
// domain transports.
package socket

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

var (
	ErrResolve        = errors.New("socket: cannot resolve address")
	ErrBind           = errors.New("socket: bind failed")
	ErrListen         = errors.New("socket: listen failed")
	ErrListenerClosed = errors.New("socket: listener closed")
)

const defaultWriteTimeout = 5 * time.Second

type Options struct {
	Backlog int
	// NonBlocking puts the listener and every accepted socket in non-blocking mode.
	NonBlocking bool
	// WriteTimeout bounds how long an accepted socket waits to flush one response.
	WriteTimeout time.Duration
}

// Listener is a bound, listening TCP socket.
type Listener struct {
	fd     int
	addr   netip.AddrPort
	opts   Options
	closed atomic.Bool
}

// Listen creates a TCP socket with SO_REUSEADDR, binds it to host:port and
// starts listening with the configured backlog.
func Listen(host string, port int, opts Options) (*Listener, error) {
	if opts.Backlog <= 0 {
		opts.Backlog = 5
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	tcpAddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolve, err)
	}
	family, sa := toSockaddr(tcpAddr)

	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: create: %w", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socket: setsockopt SO_REUSEADDR: %w", err)
	}
	if opts.NonBlocking {
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("socket: set non-blocking: %w", err)
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: %s: %v", ErrBind, tcpAddr, err)
	}
	if err := unix.Listen(fd, opts.Backlog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: %s: %v", ErrListen, tcpAddr, err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socket: getsockname: %w", err)
	}
	return &Listener{fd: fd, addr: addrPort(bound), opts: opts}, nil
}

func (l *Listener) Fd() int      { return l.fd }
func (l *Listener) Addr() string { return l.addr.String() }

// Accept takes one pending connection. In non-blocking mode an empty queue
// is reported as an error for which IsTemporary returns true.
func (l *Listener) Accept() (*FDTransport, error) {
	if l.closed.Load() {
		return nil, ErrListenerClosed
	}
	nfd, sa, err := unix.Accept(l.fd)
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(nfd)
	if l.opts.NonBlocking {
		if err := unix.SetNonblock(nfd, true); err != nil {
			_ = unix.Close(nfd)
			return nil, fmt.Errorf("socket: set non-blocking: %w", err)
		}
	}
	return newFDTransport(nfd, addrPort(sa).String(), l.opts.WriteTimeout), nil
}

// NetListener hands the socket over to the net package. The Listener must
// not be used afterwards.
func (l *Listener) NetListener() (net.Listener, error) {
	if !l.closed.CompareAndSwap(false, true) {
		return nil, ErrListenerClosed
	}
	f := os.NewFile(uintptr(l.fd), "tcp-listener:"+l.Addr())
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("socket: file listener: %w", err)
	}
	return ln, nil
}

func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(l.fd)
}

// IsTemporary reports errors after which the same operation may simply be
// attempted again later.
func IsTemporary(err error) bool {
	return errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EWOULDBLOCK) ||
		errors.Is(err, unix.EINTR) ||
		errors.Is(err, unix.ECONNABORTED)
}

func toSockaddr(addr *net.TCPAddr) (int, unix.Sockaddr) {
	if addr.IP == nil || addr.IP.To4() != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		if ip4 := addr.IP.To4(); ip4 != nil {
			copy(sa.Addr[:], ip4)
		}
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	return unix.AF_INET6, sa
}

func addrPort(sa unix.Sockaddr) netip.AddrPort {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr), uint16(v.Port))
	default:
		return netip.AddrPort{}
	}
}
