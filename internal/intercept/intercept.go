// Package intercept is the render interception layer: the single seam
// through which the engine observes the host's drawing primitives. Host
// entry points are wrapped, never replaced: the original operation always
// executes with its return value preserved, and the wrapper only adds a
// synchronous notification carrying the operation's exact geometry.
package intercept

import (
	"image"

	"github.com/tilelabel/overlay/internal/geometry"
	"github.com/tilelabel/overlay/internal/host"
)

// EventKind discriminates hub notifications.
type EventKind string

const (
	KindDraw       EventKind = "draw"
	KindClip       EventKind = "clip"
	KindFrame      EventKind = "frame"
	KindNavigation EventKind = "navigation"
	KindInput      EventKind = "input"
)

// DrawEvent describes one intercepted tile blit onto a raster surface.
type DrawEvent struct {
	Surface host.Surface
	// Dest is the destination rectangle in the surface's logical space.
	Dest geometry.Rect
	// Matrix is the context transform active at the moment of the call.
	Matrix geometry.Matrix
	// Src is the blitted content, sampled by the sequence detector.
	Src host.ImageData
	// SrcRect is the source sub-region of the blit.
	SrcRect image.Rectangle
	// FrameID is the scheduled-frame boundary this draw belongs to.
	FrameID int64
}

// ClipEvent describes one tile-sized clip command on the bound accelerated
// context.
type ClipEvent struct {
	Surface host.Surface
	Rect    geometry.Rect
	FrameID int64
}

// FrameEvent marks a scheduled-frame boundary.
type FrameEvent struct {
	FrameID int64
}

// NavigationEvent carries a client-side URL change.
type NavigationEvent struct {
	URL     string
	Replace bool
}

// InputKind classifies user inputs that may precede a zoom change.
type InputKind string

const (
	InputWheel      InputKind = "wheel"
	InputZoomKey    InputKind = "zoomKey"
	InputZoomButton InputKind = "zoomButton"
)

// InputEvent carries a qualifying user input.
type InputEvent struct {
	Kind InputKind
}

// Event is the union delivered to observers.
type Event struct {
	Kind       EventKind
	Draw       *DrawEvent
	Clip       *ClipEvent
	Frame      *FrameEvent
	Navigation *NavigationEvent
	Input      *InputEvent
}

// Logger is the pluggable logging interface for the hub.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}
