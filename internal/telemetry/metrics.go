package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"socketcalc/server/domain"
)

// Metrics records server measurements through an OpenTelemetry meter.
// Counters are created on first use and named "calcd.<name>".
type Metrics struct {
	meter   metric.Meter
	latency metric.Float64Histogram

	mu       sync.Mutex
	counters map[string]metric.Int64Counter
}

var _ domain.MetricsRecorder = (*Metrics)(nil)

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)
	latency, err := meter.Float64Histogram("calcd.request.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent in the request handler."),
	)
	if err != nil {
		return nil, err
	}
	return &Metrics{
		meter:    meter,
		latency:  latency,
		counters: make(map[string]metric.Int64Counter),
	}, nil
}

func (m *Metrics) RecordLatency(ctx context.Context, endpoint string, duration time.Duration) {
	m.latency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

func (m *Metrics) IncrementCounter(ctx context.Context, name string, delta int) {
	c, ok := m.counter(ctx, name)
	if !ok {
		return
	}
	c.Add(ctx, int64(delta))
}

func (m *Metrics) counter(ctx context.Context, name string) (metric.Int64Counter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c, true
	}
	c, err := m.meter.Int64Counter("calcd." + name)
	if err != nil {
		slog.WarnContext(ctx, "failed to create counter", "name", name, "err", err)
		return nil, false
	}
	m.counters[name] = c
	return c, true
}
