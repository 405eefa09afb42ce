// Package compositor paints pre-rendered label rasters onto the tracked
// drawing surface, clipped to the regions the host itself just repainted.
package compositor

import (
	"image"
	"log/slog"

	"github.com/tilelabel/overlay/internal/geometry"
	"github.com/tilelabel/overlay/internal/host"
	"github.com/tilelabel/overlay/internal/intercept"
	"github.com/tilelabel/overlay/internal/label"
	"github.com/tilelabel/overlay/internal/viewport"
)

// Compositor overlays labels onto intercepted draws. In raster mode it blits
// the overlapping sub-region of each label per draw; in accelerated mode it
// redraws whole labels into a persistent overlay surface instead.
type Compositor struct {
	tracker *viewport.Tracker
	labels  *label.Set
	unit    float64

	log *slog.Logger
}

func New(tracker *viewport.Tracker, labels *label.Set, unit float64, log *slog.Logger) *Compositor {
	if log == nil {
		log = slog.Default()
	}
	if labels == nil {
		labels = label.NewSet(nil)
	}
	return &Compositor{tracker: tracker, labels: labels, unit: unit, log: log}
}

// SetLabels replaces the label set used by subsequent passes.
func (c *Compositor) SetLabels(s *label.Set) {
	if s == nil {
		s = label.NewSet(nil)
	}
	c.labels = s
}

// Labels returns the current label set.
func (c *Compositor) Labels() *label.Set { return c.labels }

// ComposeDraw paints every label overlapping the given draw's destination.
// Full-canvas draws carry no overlappable tile content and painting while a
// zoom gesture is unresolved would use stale coordinates, so both cases do
// nothing.
func (c *Compositor) ComposeDraw(e *intercept.DrawEvent) {
	if e == nil || e.Surface == nil {
		return
	}
	if e.Dest.W > 2*c.unit && e.Dest.H > 2*c.unit {
		return
	}
	if c.tracker.InteractionPending() {
		return
	}

	// The draw's own matrix maps its destination into absolute canvas
	// pixels; everything after this point is in that space.
	bounds := e.Matrix.TransformRect(e.Dest)
	zoom := c.tracker.State().Zoom

	for _, l := range c.labels.VisibleAt(zoom) {
		c.paintOverlap(e.Surface, bounds, l)
	}
}

// paintOverlap blits the part of the label's raster that falls inside the
// repainted bounds. Blit errors are logged and never abort the remaining
// labels of the pass.
func (c *Compositor) paintOverlap(s host.Surface, bounds geometry.Rect, l *label.Label) {
	anchor, ok := c.tracker.MapLatLngToCanvas(l.Position)
	if !ok {
		return
	}
	lr := l.ScreenRect(anchor)
	inter, ok := bounds.Intersect(lr)
	if !ok {
		return
	}

	r := l.Rendered()
	sx := int(inter.X - lr.X)
	sy := int(inter.Y - lr.Y)
	sr := image.Rect(sx, sy, sx+int(inter.W), sy+int(inter.H))

	if err := s.DrawRGBA(r.Buffer, sr, inter); err != nil {
		c.log.Debug("label blit failed", "text", l.Text, "error", err)
	}
}

// RedrawOverlay repaints the full set of visible labels into the persistent
// overlay surface used in accelerated mode. Pan tracking is handled by the
// overlay's own translation, so only zoom changes and label set changes
// require calling this.
func (c *Compositor) RedrawOverlay(overlay host.Surface) {
	if overlay == nil {
		return
	}
	if c.tracker.InteractionPending() {
		return
	}
	if err := overlay.Clear(); err != nil {
		c.log.Debug("overlay clear failed", "error", err)
		return
	}

	zoom := c.tracker.State().Zoom
	dw, dh := overlay.DisplayWidth(), overlay.DisplayHeight()

	for _, l := range c.labels.VisibleAt(zoom) {
		anchor, ok := c.tracker.MapLatLngToCanvas(l.Position)
		if !ok {
			continue
		}
		lr := l.ScreenRect(anchor)
		if lr.X+lr.W < 0 || lr.Y+lr.H < 0 || lr.X > dw || lr.Y > dh {
			continue
		}
		r := l.Rendered()
		if err := overlay.DrawRGBA(r.Buffer, r.Buffer.Bounds(), lr); err != nil {
			c.log.Debug("overlay label draw failed", "text", l.Text, "error", err)
		}
	}
}
