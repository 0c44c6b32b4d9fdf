package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var ErrUnexpectedReply = errors.New("client: unexpected reply")

type LoadConfig struct {
	Addr        string
	WebSocket   bool
	Expression  string
	Expect      string // empty accepts any reply
	Total       int
	Concurrency int
}

type LoadResult struct {
	Success  int64
	Failure  int64
	Duration time.Duration
}

// RunLoad spreads Total requests over Concurrency connections. Each worker
// keeps one connection for all of its requests. A worker that loses its
// connection stops and fails the run.
func RunLoad(ctx context.Context, cfg LoadConfig) (LoadResult, error) {
	if cfg.Total <= 0 || cfg.Concurrency <= 0 {
		return LoadResult{}, fmt.Errorf("client: total and concurrency must be positive")
	}
	if cfg.Concurrency > cfg.Total {
		cfg.Concurrency = cfg.Total
	}

	var success, failure atomic.Int64
	perWorker, remainder := divideWork(cfg.Total, cfg.Concurrency)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for worker := range cfg.Concurrency {
		count := perWorker
		if worker < remainder {
			count++
		}
		g.Go(func() error {
			conn, err := Dial(ctx, cfg.Addr, cfg.WebSocket)
			if err != nil {
				return err
			}
			defer conn.Close()
			for range count {
				reply, err := conn.Exchange(ctx, cfg.Expression)
				if err != nil {
					failure.Add(1)
					return fmt.Errorf("worker %d: %w", worker, err)
				}
				if cfg.Expect != "" && reply != cfg.Expect {
					failure.Add(1)
					slog.WarnContext(ctx, "unexpected reply", "worker", worker, "reply", reply, "want", cfg.Expect)
					continue
				}
				success.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	res := LoadResult{Success: success.Load(), Failure: failure.Load(), Duration: time.Since(start)}
	if err == nil && res.Failure > 0 {
		err = fmt.Errorf("%w: %d of %d", ErrUnexpectedReply, res.Failure, cfg.Total)
	}
	return res, err
}

func divideWork(total, workers int) (int, int) {
	return total / workers, total % workers
}
