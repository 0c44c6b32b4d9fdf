//go:build linux || darwin

package threaded

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"socketcalc/server/domain"
)

func start(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Host = "127.0.0.1"
	if cfg.Handler == nil {
		cfg.Handler = domain.Calculator{}
	}
	s, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return s
}

func exchange(c net.Conn, req string, wait time.Duration) (string, error) {
	if _, err := c.Write([]byte(req)); err != nil {
		return "", err
	}
	if err := c.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return "", err
	}
	buf := make([]byte, 1024)
	n, err := c.Read(buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

func TestNew_RequiresHandler(t *testing.T) {
	_, err := New(Config{Host: "127.0.0.1"})
	require.ErrorIs(t, err, ErrHandlerRequired)
}

func TestServer_ServesClientsConcurrently(t *testing.T) {
	s := start(t, Config{})

	// Every client holds its connection open while the others are served.
	conns := make([]net.Conn, 8)
	for i := range conns {
		c, err := net.Dial("tcp", s.Addr())
		require.NoError(t, err)
		defer c.Close()
		conns[i] = c
	}

	var g errgroup.Group
	for i, c := range conns {
		g.Go(func() error {
			got, err := exchange(c, fmt.Sprintf("%d * 10", i), 3*time.Second)
			if err != nil {
				return err
			}
			if want := fmt.Sprintf("%d.0", i*10); got != want {
				return fmt.Errorf("client %d got %q, want %q", i, got, want)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Eventually(t, func() bool { return s.Active() == int64(len(conns)) }, 3*time.Second, 10*time.Millisecond)
}

func TestServer_MaxConnsQueuesExtraClients(t *testing.T) {
	s := start(t, Config{MaxConns: 1})

	first, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer first.Close()
	got, err := exchange(first, "1 + 1", 3*time.Second)
	require.NoError(t, err)
	require.Equal(t, "2.0", got)

	second, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer second.Close()
	_, err = exchange(second, "2 + 2", 200*time.Millisecond)
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout())

	require.NoError(t, first.Close())
	require.NoError(t, second.SetReadDeadline(time.Now().Add(3*time.Second)))
	buf := make([]byte, 1024)
	n, err := second.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "4.0", string(buf[:n]))
}

func TestServer_DisconnectDoesNotAffectOthers(t *testing.T) {
	s := start(t, Config{Handler: domain.Echo{}})

	a, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	b, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer b.Close()

	got, err := exchange(a, "ping", 3*time.Second)
	require.NoError(t, err)
	require.Equal(t, "ping", got)
	require.NoError(t, a.Close())

	got, err = exchange(b, "pong", 3*time.Second)
	require.NoError(t, err)
	require.Equal(t, "pong", got)
}
