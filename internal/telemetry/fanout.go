package telemetry

import (
	"context"
	"errors"
	"log/slog"
)

type fanout struct {
	level    slog.Leveler
	handlers []slog.Handler
}

// NewFanout returns a handler that passes every record at or above level to
// each of handlers.
func NewFanout(level slog.Leveler, handlers ...slog.Handler) slog.Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &fanout{level: level, handlers: handlers}
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	if level < f.level.Level() {
		return false
	}
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *fanout) derive(fn func(slog.Handler) slog.Handler) slog.Handler {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = fn(h)
	}
	return &fanout{level: f.level, handlers: handlers}
}
