// Package locator finds the host's primary rendering surface among the
// document's surfaces and maintains the engine's overlay sibling.
package locator

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/tilelabel/overlay/internal/host"
	"github.com/tilelabel/overlay/internal/retry"
)

const (
	// Accelerated contexts start at this placeholder size before the host's
	// first resize; it is the only reliable pre-resize marker.
	placeholderWidth  = 300
	placeholderHeight = 150

	// tileUnit is the base tile edge the raster heuristic keys on.
	tileUnit = 256

	// minRasterArea excludes icon and widget canvases, which also tend to
	// come in tile-multiple sizes.
	minRasterArea = 100000
)

// Dependencies carries what the locator needs from the host.
type Dependencies struct {
	Doc   host.Document
	Sched host.Scheduler
	Log   *slog.Logger
}

// Locator performs single-shot surface detection with backoff and owns the
// overlay surface in accelerated mode.
type Locator struct {
	deps Dependencies
	log  *slog.Logger

	surface  host.Surface
	overlay  host.Surface
	tag      string
	loop     *retry.Loop
	cancelRO func()
	onResize func()
}

func New(deps Dependencies) *Locator {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Locator{deps: deps, log: log}
}

// qualifies applies the detection heuristic to one candidate.
func qualifies(s host.Surface) bool {
	switch s.Kind() {
	case host.ContextAccelerated:
		return s.Width() == placeholderWidth && s.Height() == placeholderHeight
	case host.ContextRaster:
		if !s.Attached() {
			return false
		}
		w, h := s.Width(), s.Height()
		if w%tileUnit != 0 || h%tileUnit != 0 {
			return false
		}
		return w*h > minRasterArea
	}
	return false
}

// Find scans the document once. The first qualifying surface wins and is
// tagged so later lookups skip the heuristics.
func (l *Locator) Find() (host.Surface, bool) {
	if l.surface != nil {
		return l.surface, true
	}
	for _, s := range l.deps.Doc.Surfaces() {
		if s.Tag() == l.tag && l.tag != "" {
			l.surface = s
			return s, true
		}
		if qualifies(s) {
			l.tag = fmt.Sprintf("ovl-%08x", rand.Uint32())
			s.SetTag(l.tag)
			l.surface = s
			l.log.Info("rendering surface detected",
				"kind", s.Kind().String(), "width", s.Width(), "height", s.Height(), "tag", l.tag)
			return s, true
		}
	}
	return nil, false
}

// Start searches immediately, then keeps retrying with capped exponential
// backoff until a surface appears. The host may construct its canvas well
// after this code runs, so the loop never gives up.
func (l *Locator) Start(onFound func(host.Surface)) {
	if s, ok := l.Find(); ok {
		onFound(s)
		return
	}
	l.loop = retry.Start(l.deps.Sched, retry.DefaultPolicy, func() bool {
		s, ok := l.Find()
		if ok {
			onFound(s)
		}
		return ok
	})
}

// Surface returns the detected primary surface, nil before detection.
func (l *Locator) Surface() host.Surface { return l.surface }

// Tag returns the opaque identifier assigned at detection.
func (l *Locator) Tag() string { return l.tag }

// IsValid reports whether the detected surface is still part of the
// document. False means the page tore it down and everything downstream
// must reinitialize.
func (l *Locator) IsValid() bool {
	return l.surface != nil && l.surface.Attached()
}

// EnsureOverlay creates the transparent overlay sibling used in accelerated
// mode, sized to the primary surface's layout dimensions scaled by the
// device pixel ratio, and re-syncs it whenever the layout size changes.
func (l *Locator) EnsureOverlay(onResize func()) (host.Surface, error) {
	if l.overlay != nil {
		return l.overlay, nil
	}
	if l.surface == nil {
		return nil, fmt.Errorf("no primary surface detected")
	}
	l.onResize = onResize

	ov, err := l.createOverlay()
	if err != nil {
		return nil, fmt.Errorf("create overlay: %w", err)
	}
	l.overlay = ov
	l.cancelRO = l.deps.Doc.ObserveResize(l.surface, l.syncOverlaySize)
	return ov, nil
}

func (l *Locator) createOverlay() (host.Surface, error) {
	dpr := l.deps.Doc.DevicePixelRatio()
	w := int(l.surface.DisplayWidth() * dpr)
	h := int(l.surface.DisplayHeight() * dpr)
	return l.deps.Doc.CreateOverlay(l.surface, w, h)
}

// syncOverlaySize replaces the overlay with one matching the primary
// surface's new layout size. Backing stores cannot be resized in place.
func (l *Locator) syncOverlaySize() {
	if l.surface == nil || l.overlay == nil {
		return
	}
	ov, err := l.createOverlay()
	if err != nil {
		l.log.Error("overlay resize failed", "error", err)
		return
	}
	ov.SetVisible(l.overlay.Visible())
	l.overlay = ov
	l.log.Debug("overlay resized",
		"width", ov.Width(), "height", ov.Height())
	if l.onResize != nil {
		l.onResize()
	}
}

// Overlay returns the overlay surface, nil until EnsureOverlay succeeds.
func (l *Locator) Overlay() host.Surface { return l.overlay }

// ShowOverlay makes the overlay visible.
func (l *Locator) ShowOverlay() {
	if l.overlay != nil {
		l.overlay.SetVisible(true)
	}
}

// HideOverlay hides the overlay, used while transforms are ambiguous.
func (l *Locator) HideOverlay() {
	if l.overlay != nil {
		l.overlay.SetVisible(false)
	}
}

// SetOverlayTranslate offsets the overlay immediately, keeping it glued to
// a moving tile set without waiting for a redraw.
func (l *Locator) SetOverlayTranslate(x, y float64) {
	if l.overlay != nil {
		l.overlay.SetTranslate(x, y)
	}
}

// Cleanup stops retries and resize observation and forgets the surfaces.
// The locator can be started again afterwards.
func (l *Locator) Cleanup() {
	if l.loop != nil {
		l.loop.Stop()
		l.loop = nil
	}
	if l.cancelRO != nil {
		l.cancelRO()
		l.cancelRO = nil
	}
	l.surface = nil
	l.overlay = nil
	l.onResize = nil
}
