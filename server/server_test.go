//go:build linux || darwin

package server_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"socketcalc/server"
	"socketcalc/server/domain"
)

func start(t *testing.T, cfg server.Config) domain.Server {
	t.Helper()
	cfg.Host = "127.0.0.1"
	if cfg.Handler == nil {
		cfg.Handler = domain.Calculator{}
	}
	srv, err := server.New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("server did not stop")
		}
	})
	return srv
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"iterative", "threaded", "multiplex", "websocket"} {
		m, err := server.ParseMode(s)
		require.NoError(t, err)
		require.Equal(t, server.Mode(s), m)
	}
	_, err := server.ParseMode("forking")
	require.ErrorIs(t, err, server.ErrUnknownMode)
}

func TestNewUnknownMode(t *testing.T) {
	_, err := server.New(server.Config{Mode: "forking", Handler: domain.Echo{}})
	require.ErrorIs(t, err, server.ErrUnknownMode)
}

func TestNewServesEveryTCPMode(t *testing.T) {
	for _, mode := range []server.Mode{server.ModeIterative, server.ModeThreaded, server.ModeMultiplex} {
		t.Run(string(mode), func(t *testing.T) {
			srv := start(t, server.Config{Mode: mode})

			c, err := net.Dial("tcp", srv.Addr())
			require.NoError(t, err)
			defer c.Close()
			require.NoError(t, c.SetDeadline(time.Now().Add(5*time.Second)))

			_, err = c.Write([]byte("6 / 3"))
			require.NoError(t, err)
			buf := make([]byte, domain.MaxRequestSize)
			n, err := c.Read(buf)
			require.NoError(t, err)
			require.Equal(t, "2.0", string(buf[:n]))
		})
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv := start(t, server.Config{Mode: server.ModeWebSocket})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	for req, want := range map[string]string{
		"2 + 2":     "4.0",
		"5 / 0":     domain.ReplyDivisionByZero,
		"2 ^ 3":     domain.ReplyUnsupportedOperator,
		"1 2":       domain.ReplyInvalidFormat,
		"0.1 + 0.2": "0.30000000000000004",
	} {
		require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(req)))
		typ, data, err := c.Read(ctx)
		require.NoError(t, err)
		require.Equal(t, websocket.MessageText, typ)
		require.Equal(t, want, string(data), "request %q", req)
	}
	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))
}

func TestWebSocketEchoKeepsMessageType(t *testing.T) {
	srv := start(t, server.Config{Mode: server.ModeWebSocket, Handler: domain.Echo{}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	payload := []byte{0x00, 0xff, 0x10, 0x7f}
	require.NoError(t, c.Write(ctx, websocket.MessageBinary, payload))
	typ, data, err := c.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageBinary, typ)
	require.Equal(t, payload, data)
}

func TestWebSocketShutdownClosesSessions(t *testing.T) {
	srv, err := server.New(server.Config{Mode: server.ModeWebSocket, Host: "127.0.0.1", Handler: domain.Echo{}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dcancel()
	c, _, err := websocket.Dial(dctx, "ws://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer c.CloseNow()
	require.NoError(t, c.Write(dctx, websocket.MessageText, []byte("hi")))
	_, _, err = c.Read(dctx)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	_, _, err = c.Read(dctx)
	require.Error(t, err)
	require.False(t, errors.Is(err, context.DeadlineExceeded), "session should be closed by the server")
}

func TestHealthz(t *testing.T) {
	srv := start(t, server.Config{Mode: server.ModeWebSocket})

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeTwice(t *testing.T) {
	srv := start(t, server.Config{Mode: server.ModeWebSocket})
	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()

	err = srv.Serve(context.Background())
	require.ErrorIs(t, err, server.ErrAlreadyStarted)
}
