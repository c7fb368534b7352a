package mailer

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// lockedBuffer is a bytes.Buffer safe for concurrent writes from handlers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// teeLogger returns a logger writing to base and, at debug level while on
// is set, to buf.
func teeLogger(base *slog.Logger, buf *lockedBuffer, on *atomic.Bool) *slog.Logger {
	capture := &switchHandler{
		on:      on,
		handler: slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}
	return slog.New(&multiHandler{handlers: []slog.Handler{base.Handler(), capture}})
}

// switchHandler forwards records only while on is set.
type switchHandler struct {
	on      *atomic.Bool
	handler slog.Handler
}

func (s *switchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return s.on.Load() && s.handler.Enabled(ctx, level)
}

func (s *switchHandler) Handle(ctx context.Context, record slog.Record) error {
	return s.handler.Handle(ctx, record)
}

func (s *switchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &switchHandler{on: s.on, handler: s.handler.WithAttrs(attrs)}
}

func (s *switchHandler) WithGroup(name string) slog.Handler {
	return &switchHandler{on: s.on, handler: s.handler.WithGroup(name)}
}

type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range m.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, handler := range m.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, 0, len(m.handlers))
	for _, handler := range m.handlers {
		handlers = append(handlers, handler.WithAttrs(attrs))
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, 0, len(m.handlers))
	for _, handler := range m.handlers {
		handlers = append(handlers, handler.WithGroup(name))
	}
	return &multiHandler{handlers: handlers}
}
