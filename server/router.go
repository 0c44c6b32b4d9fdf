package server

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"socketcalc/server/domain"
	"socketcalc/server/handler"
	"socketcalc/server/stream"
)

func Route(h domain.Handler, metrics domain.MetricsRecorder, opts stream.Options) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", handler.NewAcceptHandler(h, metrics, opts))
	mux.Handle("GET /healthz", handler.NewHealthHandler())
	return otelhttp.NewHandler(mux, "calcd")
}
