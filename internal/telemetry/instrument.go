package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"socketcalc/server/domain"
)

// Instrument wraps h so each request opens a span and reports its latency
// and a "requests" counter to metrics. Replies are passed through untouched.
func Instrument(h domain.Handler, metrics domain.MetricsRecorder, tp trace.TracerProvider, endpoint string) domain.Handler {
	if metrics == nil {
		metrics = domain.NoopMetrics{}
	}
	tracer := tp.Tracer(instrumentationName)
	return domain.HandlerFunc(func(ctx context.Context, request []byte) []byte {
		ctx, span := tracer.Start(ctx, "calcd.handle",
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("calcd.endpoint", endpoint),
				attribute.Int("calcd.request.size", len(request)),
			),
		)
		defer span.End()

		start := time.Now()
		resp := h.Handle(ctx, request)
		metrics.RecordLatency(ctx, endpoint, time.Since(start))
		metrics.IncrementCounter(ctx, "requests", 1)

		span.SetAttributes(attribute.Int("calcd.response.size", len(resp)))
		return resp
	})
}
