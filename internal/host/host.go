// Package host defines the seam between the overlay engine and the
// environment that owns the rendering surfaces, timers and navigation. The
// engine never talks to the real environment directly; everything it needs
// is expressed here so that the interception layer has a single boundary to
// wrap and tests can substitute the sim implementation.
package host

import (
	"image"
	"time"

	"github.com/tilelabel/overlay/internal/geometry"
)

// ContextKind identifies the rendering pipeline a surface uses.
type ContextKind int

const (
	// ContextRaster is a plain 2D raster context drawn by tile blits.
	ContextRaster ContextKind = iota
	// ContextAccelerated is a GPU-backed context drawn via clip regions.
	ContextAccelerated
)

func (k ContextKind) String() string {
	if k == ContextAccelerated {
		return "accelerated"
	}
	return "raster"
}

// ImageData is readable pixel content attached to a draw operation. RGBA
// returns the raw bytes in RGBA order; it fails when the content cannot be
// read back, e.g. due to cross-origin restrictions.
type ImageData interface {
	Bounds() image.Rectangle
	RGBA() ([]byte, error)
}

// Surface is a rendering surface in the document: either a host-owned
// canvas or an overlay created by the engine.
type Surface interface {
	Kind() ContextKind

	// Width and Height are the backing store dimensions in device pixels.
	Width() int
	Height() int

	// DisplayWidth and DisplayHeight are the layout dimensions in CSS pixels.
	DisplayWidth() float64
	DisplayHeight() float64

	// Attached reports whether the surface is still part of the document.
	Attached() bool

	// Tag is the opaque identifier assigned after detection so consumers can
	// re-locate the surface without repeating heuristics. Empty until tagged.
	Tag() string
	SetTag(tag string)

	// Transform is the surface's own computed transform; ParentTransform is
	// the containing element's, which animates during zoom gestures.
	Transform() geometry.Transform
	ParentTransform() geometry.Transform

	// ParentSize returns the container's pixel dimensions, or (0, 0) when
	// they cannot be read.
	ParentSize() (w, h float64)

	// DrawRGBA blits the sr sub-region of src to the destination rectangle
	// in absolute canvas pixel coordinates, ignoring any current transform.
	DrawRGBA(src *image.RGBA, sr image.Rectangle, dst geometry.Rect) error

	// Clear erases the surface.
	Clear() error

	// Visibility and position offset, used for the overlay surface.
	SetVisible(v bool)
	Visible() bool
	SetTranslate(x, y float64)
	Translate() (x, y float64)
}

// Document exposes the page the surfaces live in.
type Document interface {
	// Surfaces lists every rendering surface currently in the document.
	Surfaces() []Surface

	// CreateOverlay creates a transparent raster surface as a sibling of the
	// given surface with the given backing store size.
	CreateOverlay(near Surface, width, height int) (Surface, error)

	DevicePixelRatio() float64

	// URL returns the document's current navigable URL.
	URL() string

	// Origin returns the document origin used to validate cross-context
	// messages.
	Origin() string

	// ObserveResize invokes fn whenever the surface's layout size changes,
	// until the returned cancel function is called.
	ObserveResize(s Surface, fn func()) (cancel func())
}

// TimerID identifies a scheduled timeout.
type TimerID int

// Scheduler is the host's event loop. All engine callbacks run on it; there
// is no concurrent entry into the engine.
type Scheduler interface {
	SetTimeout(d time.Duration, fn func()) TimerID
	ClearTimeout(id TimerID)

	// NextTick schedules fn after the current batch of callbacks, used for
	// the deferred compositing retry.
	NextTick(fn func())

	Now() time.Time
}
