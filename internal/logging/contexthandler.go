package logging

import (
	"context"
	"log/slog"
)

// AttrProvider returns attributes sampled at record time. The logging setup
// uses it to stamp each record with the current frame number and bound
// surface tag.
type AttrProvider func() []slog.Attr

// ContextHandler wraps a sink and appends the provider's attributes to each
// record on its way through.
type ContextHandler struct {
	inner    slog.Handler
	provider AttrProvider
}

// NewContextHandler wraps inner with the given provider. A nil provider
// passes records through unchanged.
func NewContextHandler(inner slog.Handler, provider AttrProvider) *ContextHandler {
	return &ContextHandler{
		inner:    inner,
		provider: provider,
	}
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle appends the sampled attributes and delegates. The record is cloned
// first; appending to the caller's record would share its attribute backing
// array.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		if attrs := h.provider(); len(attrs) > 0 {
			r = r.Clone()
			r.AddAttrs(attrs...)
		}
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs returns a new ContextHandler over the inner handler with the
// attributes added.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{
		inner:    h.inner.WithAttrs(attrs),
		provider: h.provider,
	}
}

// WithGroup returns a new ContextHandler with the group opened on the inner
// handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{
		inner:    h.inner.WithGroup(name),
		provider: h.provider,
	}
}
