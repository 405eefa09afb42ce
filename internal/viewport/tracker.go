// Package viewport maintains the believed map viewport: center, zoom and the
// surface/container transforms inferred from the host, reconciled against
// the URL-encoded ground truth. All state lives in one Tracker and is
// mutated only through its named transition methods, each emitting a typed
// change notification.
package viewport

import (
	"log/slog"
	"math"
	"time"

	"github.com/tilelabel/overlay/internal/geo"
	"github.com/tilelabel/overlay/internal/geometry"
	"github.com/tilelabel/overlay/internal/host"
	"github.com/tilelabel/overlay/internal/projection"
)

// ChangeKind names the category of a state mutation.
type ChangeKind string

const (
	ChangePosition        ChangeKind = "position"
	ChangeCanvasTransform ChangeKind = "canvasTransform"
	ChangeParentTransform ChangeKind = "parentTransform"
	ChangeZoomResolved    ChangeKind = "zoomResolved"
)

// Listener receives change notifications.
type Listener func(ChangeKind)

// restEpsilon bounds how far a transform may be from identity and still
// count as resting.
const restEpsilon = 0.5

// movementRestEpsilon is the at-rest bound for accumulated movement in
// movement-tracking mode.
const movementRestEpsilon = 1.0

// interactionQuiet is how long after the last qualifying input the pending
// flag clears and a full refresh is forced.
const interactionQuiet = time.Second

// Mode selects how the tracker learns about canvas motion.
type Mode int

const (
	// ModeTransform reads the surface and container transforms from
	// computed style.
	ModeTransform Mode = iota
	// ModeMovement folds accumulated tile-movement vectors from the
	// reconciler into the position formula instead of the canvas transform.
	ModeMovement
)

// State is the tracked viewport, owned exclusively by one Tracker.
type State struct {
	Center             geo.LatLng
	HasCenter          bool
	Zoom               float64
	CanvasTransform    geometry.Transform
	ContainerTransform geometry.Transform
	InteractionPending bool

	// MovementX/Y is the accumulated tile movement since the last URL
	// baseline, used in ModeMovement.
	MovementX float64
	MovementY float64
}

// Dependencies holds what the tracker needs from its surroundings.
type Dependencies struct {
	Doc     host.Document
	Sched   host.Scheduler
	Surface host.Surface
	Mode    Mode
	Log     *slog.Logger
}

// Tracker is the viewport state machine.
type Tracker struct {
	deps  Dependencies
	state State

	listeners  map[int]Listener
	nextHandle int

	pendingTimer  host.TimerID
	pendingActive bool

	// resolving is set while resolveInteraction runs so that the transform
	// refresh it performs does not emit a second zoomResolved.
	resolving bool

	lastURL string

	log *slog.Logger
}

// NewTracker creates a tracker for the given surface.
func NewTracker(deps Dependencies) *Tracker {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		deps:      deps,
		listeners: make(map[int]Listener),
		state: State{
			CanvasTransform:    geometry.IdentityTransform(),
			ContainerTransform: geometry.IdentityTransform(),
		},
		log: log,
	}
}

// State returns a copy of the current viewport state.
func (t *Tracker) State() State { return t.state }

// InteractionPending reports whether a zoom gesture may be in flight; all
// painting is suppressed while this holds.
func (t *Tracker) InteractionPending() bool { return t.state.InteractionPending }

// AddChangeListener registers a listener and returns its handle.
func (t *Tracker) AddChangeListener(fn Listener) int {
	t.nextHandle++
	t.listeners[t.nextHandle] = fn
	return t.nextHandle
}

// RemoveChangeListener drops a listener by handle.
func (t *Tracker) RemoveChangeListener(handle int) {
	delete(t.listeners, handle)
}

// notify delivers a change to every listener; a panicking listener must not
// prevent the others from running.
func (t *Tracker) notify(kind ChangeKind) {
	for _, fn := range t.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.log.Error("change listener panicked", "kind", string(kind), "panic", r)
				}
			}()
			fn(kind)
		}()
	}
}

// ContainerAtRest reports whether the container transform (or, in movement
// mode, the accumulated movement) is within epsilon of neutral. Ground-truth
// URL refreshes are only trusted when this holds.
func (t *Tracker) ContainerAtRest() bool {
	if t.deps.Mode == ModeMovement {
		return math.Abs(t.state.MovementX) <= movementRestEpsilon &&
			math.Abs(t.state.MovementY) <= movementRestEpsilon
	}
	return t.state.ContainerTransform.AtRest(restEpsilon)
}

// RefreshGroundTruth re-parses the document URL for the embedded position.
// The refresh is silently dropped while the container is not at rest: an
// animating container means the URL has not caught up to the visual state.
// Returns true when the state changed.
func (t *Tracker) RefreshGroundTruth() bool {
	if !t.ContainerAtRest() {
		t.log.Debug("ground-truth refresh dropped: container not at rest")
		return false
	}

	url := t.deps.Doc.URL()
	gt, ok := ParseURL(url, t.viewportHeight())
	if !ok {
		// Malformed or absent pattern: keep the last known state.
		return false
	}

	if url == t.lastURL && t.state.HasCenter &&
		t.state.Center == gt.Center && t.state.Zoom == gt.Zoom {
		return false
	}
	t.lastURL = url

	changed := !t.state.HasCenter || t.state.Center != gt.Center || t.state.Zoom != gt.Zoom
	t.state.Center = gt.Center
	t.state.HasCenter = true
	t.state.Zoom = gt.Zoom

	if changed {
		t.log.Debug("ground truth updated",
			"lat", gt.Center.Lat, "lng", gt.Center.Lng, "zoom", gt.Zoom)
		t.notify(ChangePosition)
	}
	return changed
}

// RefreshTransforms re-reads the surface and container transforms from the
// host. A container transition from moving to resting triggers exactly one
// ground-truth refresh, the primary signal that a gesture has concluded.
func (t *Tracker) RefreshTransforms() {
	s := t.deps.Surface
	if s == nil {
		return
	}

	canvas := s.Transform()
	if canvas != t.state.CanvasTransform {
		t.state.CanvasTransform = canvas
		t.notify(ChangeCanvasTransform)
	}

	wasAtRest := t.state.ContainerTransform.AtRest(restEpsilon)
	parent := s.ParentTransform()
	if parent != t.state.ContainerTransform {
		t.state.ContainerTransform = parent
		t.notify(ChangeParentTransform)
	}

	if !wasAtRest && t.state.ContainerTransform.AtRest(restEpsilon) {
		// Gesture concluded. The refresh must fully complete, including
		// clearing any pending interaction timer, before zoomResolved
		// listeners observe the notification.
		t.clearPendingTimer()
		t.state.InteractionPending = false
		t.RefreshGroundTruth()
		if !t.resolving {
			t.notify(ChangeZoomResolved)
		}
	}
}

// NoteInteraction records a qualifying input that may precede a zoom change.
// Painting is suppressed until one quiet second has passed, at which point a
// full refresh runs and zoomResolved is emitted.
func (t *Tracker) NoteInteraction() {
	t.state.InteractionPending = true
	t.clearPendingTimer()
	t.pendingTimer = t.deps.Sched.SetTimeout(interactionQuiet, t.resolveInteraction)
	t.pendingActive = true
}

func (t *Tracker) resolveInteraction() {
	t.pendingActive = false
	t.state.InteractionPending = false
	t.RefreshGroundTruth()
	t.resolving = true
	t.RefreshTransforms()
	t.resolving = false
	t.notify(ChangeZoomResolved)
}

// ForceResolve cancels a pending interaction timer and resolves immediately;
// used when a genuine navigation event lands mid-gesture.
func (t *Tracker) ForceResolve() {
	if !t.pendingActive && !t.state.InteractionPending {
		t.RefreshGroundTruth()
		return
	}
	t.clearPendingTimer()
	t.resolveInteraction()
}

func (t *Tracker) clearPendingTimer() {
	if t.pendingActive {
		t.deps.Sched.ClearTimeout(t.pendingTimer)
		t.pendingActive = false
	}
}

// SetMovement replaces the accumulated movement vector (ModeMovement). The
// reconciler owns the accumulation; the tracker folds it into coordinates.
func (t *Tracker) SetMovement(x, y float64) {
	if t.state.MovementX == x && t.state.MovementY == y {
		return
	}
	t.state.MovementX = x
	t.state.MovementY = y
	t.notify(ChangeCanvasTransform)
}

// viewportHeight is the display height used by the meters-visible encoding.
func (t *Tracker) viewportHeight() float64 {
	if t.deps.Surface == nil {
		return 0
	}
	if _, h := t.deps.Surface.ParentSize(); h > 0 {
		return h
	}
	return t.deps.Surface.DisplayHeight()
}

// MapLatLngToCanvas converts a geographic position to canvas pixel
// coordinates under the current state. Returns false when no center is
// known or the surface geometry is unreadable.
func (t *Tracker) MapLatLngToCanvas(ll geo.LatLng) (geometry.Point, bool) {
	if !t.state.HasCenter {
		return geometry.Point{}, false
	}
	s := t.deps.Surface
	if s == nil || !s.Attached() {
		return geometry.Point{}, false
	}
	dw, dh := s.DisplayWidth(), s.DisplayHeight()
	if dw <= 0 || dh <= 0 {
		// Zero-sized geometry: skip this paint rather than divide by it.
		return geometry.Point{}, false
	}

	delta := projection.PixelOffset(t.state.Center, ll, t.state.Zoom)
	dpr := t.deps.Doc.DevicePixelRatio()

	var offX, offY float64
	if t.deps.Mode == ModeMovement {
		offX = t.state.MovementX
		offY = t.state.MovementY
	} else {
		offX = t.state.CanvasTransform.TranslateX * dpr
		offY = t.state.CanvasTransform.TranslateY * dpr
	}

	corrX, corrY := t.alignmentCorrection()

	return geometry.Point{
		X: delta.X + dw/2 - offX + corrX,
		Y: delta.Y + dh/2 - offY + corrY,
	}, true
}

// alignmentCorrection is the empirical tile-grid correction: the host's tile
// origin shifts with the container size in a way only observable as this
// residue of the container dimensions modulo half a tile.
func (t *Tracker) alignmentCorrection() (float64, float64) {
	w, h := t.deps.Surface.ParentSize()
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	half := float64(projection.TileSize) / 2
	return math.Mod(w, half) / 2, math.Mod(h, half) / 2
}
