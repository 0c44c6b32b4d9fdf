package domain

import (
	"context"
	"time"
)

type MetricsRecorder interface {
	RecordLatency(ctx context.Context, endpoint string, duration time.Duration)
	IncrementCounter(ctx context.Context, name string, delta int)
}

type NoopMetrics struct{}

func (NoopMetrics) RecordLatency(ctx context.Context, endpoint string, duration time.Duration) {}

func (NoopMetrics) IncrementCounter(ctx context.Context, name string, delta int) {}

var _ MetricsRecorder = NoopMetrics{}
