package handler

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	adapterwebsocket "socketcalc/server/adapter/websocket"
	"socketcalc/server/domain"
	"socketcalc/server/stream"
)

// AcceptHandler upgrades a request to a WebSocket and serves it with the
// same request cycle as a TCP connection, one message per request.
type AcceptHandler struct {
	handler domain.Handler
	metrics domain.MetricsRecorder
	opts    stream.Options
}

func NewAcceptHandler(h domain.Handler, metrics domain.MetricsRecorder, opts stream.Options) *AcceptHandler {
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	return &AcceptHandler{handler: h, metrics: metrics, opts: opts}
}

func (h *AcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // no origin check: clients are tools, not browsers on other sites
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to accept", "err", err)
		return
	}

	conn, err := domain.NewConnection(adapterwebsocket.NewTransportFrom(ws, r.RemoteAddr))
	if err != nil {
		_ = ws.CloseNow()
		slog.ErrorContext(ctx, "failed to create connection", "err", err)
		return
	}
	h.metrics.IncrementCounter(ctx, "connections.accepted", 1)
	slog.InfoContext(ctx, "accepted connection", "conn_id", conn.ID, "peer", conn.Peer())

	reason := stream.Serve(ctx, conn, h.handler, h.opts)
	h.metrics.IncrementCounter(ctx, "connections.closed."+reason.String(), 1)
}
