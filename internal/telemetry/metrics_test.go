//go:build linux || darwin

package telemetry_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"socketcalc/internal/telemetry"
	"socketcalc/server/domain"
	"socketcalc/server/multiplex"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sum(agg metricdata.Aggregation) int64 {
	s, ok := agg.(metricdata.Sum[int64])
	if !ok {
		return 0
	}
	var total int64
	for _, dp := range s.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsReachTheMeterProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics, err := telemetry.NewMetrics(mp)
	require.NoError(t, err)

	loop, err := multiplex.New(multiplex.Config{
		Host:    "127.0.0.1",
		Handler: telemetry.Instrument(domain.Calculator{}, metrics, tracenoop.NewTracerProvider(), "multiplex"),
		Metrics: metrics,
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("loop did not stop")
		}
	})

	c, err := net.Dial("tcp", loop.Addr())
	require.NoError(t, err)
	require.NoError(t, c.SetDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, domain.MaxRequestSize)
	for _, req := range []string{"1 + 1", "2 * 3"} {
		_, err = c.Write([]byte(req))
		require.NoError(t, err)
		_, err = c.Read(buf)
		require.NoError(t, err)
	}
	require.NoError(t, c.Close())

	require.Eventually(t, func() bool {
		return sum(collect(t, reader)["calcd.connections.closed.peer"]) == 1
	}, 3*time.Second, 10*time.Millisecond)

	got := collect(t, reader)
	require.EqualValues(t, 2, sum(got["calcd.requests"]))
	require.EqualValues(t, 1, sum(got["calcd.connections.accepted"]))

	hist, ok := got["calcd.request.duration"].(metricdata.Histogram[float64])
	require.True(t, ok, "request.duration is %T", got["calcd.request.duration"])
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	require.EqualValues(t, 2, count)
}
