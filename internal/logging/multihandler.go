package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// MultiHandler fans one record out to every configured sink: the log file or
// console, the graylog writer, and the OTel bridge. A sink that fails must
// not silence the others, so failures are counted rather than returned.
type MultiHandler struct {
	handlers []slog.Handler

	// dropped counts records a sink failed to write. Shared across
	// WithAttrs/WithGroup derivations so the total covers the whole tree.
	dropped *atomic.Int64
}

// NewMultiHandler creates a handler that writes to all provided handlers.
// Nil handlers are skipped, so callers can pass optional sinks directly.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	valid := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			valid = append(valid, h)
		}
	}
	return &MultiHandler{handlers: valid, dropped: new(atomic.Int64)}
}

// Enabled returns true if any sink is enabled for the given level.
func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle sends the record to every enabled sink. Each sink gets its own
// clone since handlers may retain the record.
func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			m.dropped.Add(1)
		}
	}
	return nil
}

// Dropped returns the number of per-sink write failures seen so far.
func (m *MultiHandler) Dropped() int64 {
	return m.dropped.Load()
}

// WithAttrs returns a new MultiHandler with the attributes added to every
// sink.
func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: handlers, dropped: m.dropped}
}

// WithGroup returns a new MultiHandler with the group opened on every sink.
func (m *MultiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return m
	}
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: handlers, dropped: m.dropped}
}
