// Package reconcile decides, per intercepted draw, whether compositing may
// run immediately or must wait. It tracks an anchor tile across frames in
// the accelerated mode and detects content changes via pixel sampling in
// the raster mode.
package reconcile

import (
	"log/slog"
	"math"

	"github.com/tilelabel/overlay/internal/geometry"
	"github.com/tilelabel/overlay/internal/intercept"
)

// Movement is the frame-to-frame tile displacement delivered to the
// viewport tracker's movement mode.
type Movement struct {
	// AccumX/Y is the running vector since the last URL baseline.
	AccumX float64
	AccumY float64
	// Wrapped flags that this frame's delta was unwrapped across the tile
	// grid period.
	Wrapped bool
}

// MovementFunc consumes movement updates.
type MovementFunc func(Movement)

// Reconciler accumulates tile movement in the accelerated mode.
type Reconciler struct {
	unit float64

	frameTiles []geometry.Rect

	frameAnchor     geometry.Point
	haveFrameAnchor bool

	accumX float64
	accumY float64
	// baselinePending is set after a ground-truth reset: the next anchor
	// found becomes the URL baseline with zero accumulated movement.
	baselinePending bool

	onMovement MovementFunc

	log *slog.Logger
}

// NewReconciler creates a reconciler for the given tile unit.
func NewReconciler(unit float64, onMovement MovementFunc, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		unit:            unit,
		baselinePending: true,
		onMovement:      onMovement,
		log:             log,
	}
}

// ResetBaseline restarts movement accumulation; called exactly when a new
// URL baseline is captured.
func (r *Reconciler) ResetBaseline() {
	r.accumX = 0
	r.accumY = 0
	r.baselinePending = true
	r.haveFrameAnchor = false
	if r.onMovement != nil {
		r.onMovement(Movement{})
	}
}

// ObserveClip buffers one tile-sized clip rectangle for the current frame.
func (r *Reconciler) ObserveClip(e intercept.ClipEvent) {
	if e.Rect.W <= 0 || e.Rect.H <= 0 {
		return
	}
	if e.Rect.W > r.unit || e.Rect.H > r.unit {
		return
	}
	r.frameTiles = append(r.frameTiles, e.Rect)
}

// OnFrameBoundary finalizes the previous frame: picks its anchor, folds the
// delta into the running movement vector and clears the buffer. Frames with
// no usable anchor are skipped silently.
func (r *Reconciler) OnFrameBoundary() {
	tiles := r.frameTiles
	r.frameTiles = r.frameTiles[:0]

	anchor, ok := selectAnchor(tiles, r.unit)
	if !ok {
		return
	}

	if r.baselinePending {
		// First anchor after a ground-truth reset: this is the URL baseline.
		r.baselinePending = false
		r.frameAnchor = anchor
		r.haveFrameAnchor = true
		return
	}
	if !r.haveFrameAnchor {
		r.frameAnchor = anchor
		r.haveFrameAnchor = true
		return
	}

	dx, wrappedX := Unwrap(anchor.X-r.frameAnchor.X, r.unit)
	dy, wrappedY := Unwrap(anchor.Y-r.frameAnchor.Y, r.unit)
	r.frameAnchor = anchor

	if dx == 0 && dy == 0 {
		return
	}
	r.accumX += dx
	r.accumY += dy

	wrapped := wrappedX || wrappedY
	if wrapped {
		r.log.Debug("tile delta unwrapped", "dx", dx, "dy", dy)
	}
	if r.onMovement != nil {
		r.onMovement(Movement{AccumX: r.accumX, AccumY: r.accumY, Wrapped: wrapped})
	}
}

// Accumulated returns the running movement vector.
func (r *Reconciler) Accumulated() (x, y float64) {
	return r.accumX, r.accumY
}

// Unwrap corrects a frame delta for wraparound in the host's tile
// coordinate space: the host recycles coordinates modulo the grid period,
// so any delta beyond half a unit is interpreted as a wrap and shifted by
// one full unit.
func Unwrap(d, unit float64) (corrected float64, wrapped bool) {
	half := unit / 2
	if d > half {
		return d - unit, true
	}
	if d < -half {
		return d + unit, true
	}
	return d, false
}

// selectAnchor picks the frame's reference tile: among tiles with strictly
// positive dimensions (already bounded to the tile unit), the one whose
// virtual position minimizes vx+vy, i.e. the top-left-most tile.
func selectAnchor(tiles []geometry.Rect, unit float64) (geometry.Point, bool) {
	best := geometry.Point{}
	found := false
	for _, t := range tiles {
		if t.W <= 0 || t.H <= 0 {
			continue
		}
		v := virtualPosition(t, tiles, unit)
		if !found || v.X+v.Y < best.X+best.Y {
			best = v
			found = true
		}
	}
	return best, found
}

// adjacencyEps tolerates sub-pixel gaps between neighboring tiles.
const adjacencyEps = 0.5

// virtualPosition returns a tile's true grid-aligned top-left. A partial
// edge tile (narrower or shorter than a full unit) reports a raw coordinate
// that is off-grid; its virtual position is inferred from a full-sized
// neighbor along each axis.
func virtualPosition(t geometry.Rect, tiles []geometry.Rect, unit float64) geometry.Point {
	v := geometry.Point{X: t.X, Y: t.Y}
	if t.W < unit {
		for _, o := range tiles {
			if o == t || o.W != unit {
				continue
			}
			if math.Abs(o.X-(t.X+t.W)) < adjacencyEps {
				// Full tile to the right: this partial occupies the slot
				// ending at the neighbor's left edge.
				v.X = t.X + t.W - unit
				break
			}
			if math.Abs((o.X+o.W)-t.X) < adjacencyEps {
				// Full tile to the left: the raw coordinate is on-grid.
				v.X = t.X
				break
			}
		}
	}
	if t.H < unit {
		for _, o := range tiles {
			if o == t || o.H != unit {
				continue
			}
			if math.Abs(o.Y-(t.Y+t.H)) < adjacencyEps {
				v.Y = t.Y + t.H - unit
				break
			}
			if math.Abs((o.Y+o.H)-t.Y) < adjacencyEps {
				v.Y = t.Y
				break
			}
		}
	}
	return v
}
