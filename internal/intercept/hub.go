package intercept

import (
	"fmt"
	"image"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tilelabel/overlay/internal/geometry"
	"github.com/tilelabel/overlay/internal/host"
)

// ObserverFunc receives hub events synchronously, in registration order.
type ObserverFunc func(Event)

// Option configures observer registration.
type Option func(*obsConfig)

type obsConfig struct {
	logged bool
}

// Logged adds debug logging around the observer.
func Logged() Option {
	return func(c *obsConfig) {
		c.logged = true
	}
}

// Hub routes intercepted operations to registered observers and owns the
// frame counter and accelerated-context binding.
type Hub struct {
	observers map[EventKind][]ObserverFunc
	logger    Logger

	frameID int64

	// tileUnit bounds which clip calls count as per-tile paints.
	tileUnit float64
	// bound is the accelerated context under tracking, set by a frame's
	// first tile-or-smaller clip call.
	bound host.Surface
	// clipSeenThisFrame guards rebinding: once the bound context has
	// clipped this frame, other contexts' clips cannot steal the binding.
	// Reset exactly once per frame boundary.
	clipSeenThisFrame bool

	observed metric.Int64Counter
}

// NewHub creates a hub for the given tile unit.
func NewHub(logger Logger, tileUnit float64) (*Hub, error) {
	h := &Hub{
		observers: make(map[EventKind][]ObserverFunc),
		logger:    logger,
		tileUnit:  tileUnit,
	}

	var err error
	h.observed, err = meter().Int64Counter(
		"intercept.events.observed",
		metric.WithDescription("Total intercepted operations notified"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating observed counter: %w", err)
	}

	return h, nil
}

// Observe registers an observer for the given event kind.
func (h *Hub) Observe(kind EventKind, fn ObserverFunc, opts ...Option) {
	cfg := &obsConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	observer := fn
	if cfg.logged {
		observer = h.withLogging(kind, fn)
	}

	h.observers[kind] = append(h.observers[kind], observer)
}

// FrameID returns the current scheduled-frame counter.
func (h *Hub) FrameID() int64 { return h.frameID }

func (h *Hub) notify(kind EventKind, e Event) {
	h.observed.Add(bg(), 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	for _, fn := range h.observers[kind] {
		fn(e)
	}
}

func (h *Hub) withLogging(kind EventKind, fn ObserverFunc) ObserverFunc {
	return func(e Event) {
		h.logger.Debug("delivering event", "kind", string(kind), "frame", h.frameID)
		fn(e)
	}
}

// DrawImageFunc is the host's tile blit primitive.
type DrawImageFunc func(dst host.Surface, src host.ImageData, sr image.Rectangle, dr geometry.Rect, m geometry.Matrix) error

// WrapDrawImage returns a wrapper that performs the original blit and then
// notifies draw observers with the call's exact geometry. The original's
// return value is passed through untouched.
func (h *Hub) WrapDrawImage(orig DrawImageFunc) DrawImageFunc {
	return func(dst host.Surface, src host.ImageData, sr image.Rectangle, dr geometry.Rect, m geometry.Matrix) error {
		err := orig(dst, src, sr, dr, m)
		h.notify(KindDraw, Event{Kind: KindDraw, Draw: &DrawEvent{
			Surface: dst,
			Dest:    dr,
			Matrix:  m,
			Src:     src,
			SrcRect: sr,
			FrameID: h.frameID,
		}})
		return err
	}
}

// ClipRectFunc is the host's clip-region primitive on accelerated contexts.
type ClipRectFunc func(dst host.Surface, r geometry.Rect)

// WrapClipRect returns a wrapper that performs the original clip and then,
// when the call is tile-sized on the tracked context, notifies clip
// observers. A frame's first tile-or-smaller clip binds which context is
// tracked; a binding whose context detached is released so the next frame
// can rebind. Oversized clips are ignored as full-canvas operations.
func (h *Hub) WrapClipRect(orig ClipRectFunc) ClipRectFunc {
	return func(dst host.Surface, r geometry.Rect) {
		orig(dst, r)

		if r.W > h.tileUnit || r.H > h.tileUnit {
			return
		}
		if h.bound != nil && !h.bound.Attached() {
			h.logger.Info("bound context detached, releasing binding")
			h.bound = nil
		}
		if h.bound == nil {
			if h.clipSeenThisFrame {
				// A binding was already exercised this frame before it
				// was released; wait for a clean frame to rebind.
				return
			}
			h.bound = dst
			h.logger.Info("bound accelerated context", "w", dst.Width(), "h", dst.Height())
		}
		if dst != h.bound {
			return
		}
		h.clipSeenThisFrame = true
		h.notify(KindClip, Event{Kind: KindClip, Clip: &ClipEvent{
			Surface: dst,
			Rect:    r,
			FrameID: h.frameID,
		}})
	}
}

// FrameFunc is the host's scheduled-frame primitive: it runs fn at the next
// frame boundary.
type FrameFunc func(fn func())

// WrapRequestFrame returns a wrapper that advances the frame counter and
// notifies frame observers before the frame's callback runs, guaranteeing
// the boundary notification precedes that frame's draw notifications.
func (h *Hub) WrapRequestFrame(orig FrameFunc) FrameFunc {
	return func(fn func()) {
		orig(func() {
			h.frameID++
			h.clipSeenThisFrame = false
			h.notify(KindFrame, Event{Kind: KindFrame, Frame: &FrameEvent{FrameID: h.frameID}})
			fn()
		})
	}
}

// NavigateFunc is the host's client-side navigation primitive.
type NavigateFunc func(url string, replace bool)

// WrapNavigate returns a wrapper covering both push and replace variants.
func (h *Hub) WrapNavigate(orig NavigateFunc) NavigateFunc {
	return func(url string, replace bool) {
		orig(url, replace)
		h.notify(KindNavigation, Event{Kind: KindNavigation, Navigation: &NavigationEvent{
			URL:     url,
			Replace: replace,
		}})
	}
}

// NotifyInput reports a qualifying user input observed on a wrapped input
// handler.
func (h *Hub) NotifyInput(kind InputKind) {
	h.notify(KindInput, Event{Kind: KindInput, Input: &InputEvent{Kind: kind}})
}
