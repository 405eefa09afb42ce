// Package engine wires detection, interception, viewport tracking,
// reconciliation and compositing into one lifecycle. Everything runs on the
// host scheduler goroutine; the engine has no locking of its own.
package engine

import (
	"context"
	"log/slog"
	"math"

	"github.com/tilelabel/overlay/internal/compositor"
	"github.com/tilelabel/overlay/internal/host"
	"github.com/tilelabel/overlay/internal/intercept"
	"github.com/tilelabel/overlay/internal/label"
	"github.com/tilelabel/overlay/internal/locator"
	"github.com/tilelabel/overlay/internal/logging"
	"github.com/tilelabel/overlay/internal/messaging"
	"github.com/tilelabel/overlay/internal/projection"
	"github.com/tilelabel/overlay/internal/reconcile"
	"github.com/tilelabel/overlay/internal/telemetry"
	"github.com/tilelabel/overlay/internal/viewport"
)

// Dependencies holds the engine's collaborators. Endpoint and Telemetry are
// optional; the engine runs without either.
type Dependencies struct {
	Doc       host.Document
	Sched     host.Scheduler
	Labels    *label.Set
	Endpoint  *messaging.Endpoint
	Telemetry *telemetry.Manager
	Log       *slog.Logger
}

// Engine owns the overlay lifecycle for one detected surface.
type Engine struct {
	deps Dependencies
	log  *slog.Logger

	hub *intercept.Hub
	loc *locator.Locator

	tracker *viewport.Tracker
	rec     *reconcile.Reconciler
	seq     *reconcile.SequenceDetector
	comp    *compositor.Compositor

	accelerated bool
	initialized bool

	listener int

	// per-frame counters, flushed to telemetry at each frame boundary
	painted  int
	deferred int
	skipped  int
	clips    int
}

// New builds an engine and its interception hub. The hub exists before any
// surface is detected so the host's primitives can be wrapped at startup.
func New(deps Dependencies) (*Engine, error) {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	hub, err := intercept.NewHub(
		logging.NewHubLogger(logging.Channel(log, "intercept")),
		projection.TileSize,
	)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		deps: deps,
		log:  log,
		hub:  hub,
		loc: locator.New(locator.Dependencies{
			Doc:   deps.Doc,
			Sched: deps.Sched,
			Log:   logging.Channel(log, "locator"),
		}),
		seq: reconcile.NewSequenceDetector(projection.TileSize, logging.Channel(log, "sequence")),
	}
	e.rec = reconcile.NewReconciler(projection.TileSize, e.onMovement, logging.Channel(log, "reconcile"))

	hub.Observe(intercept.KindFrame, e.onFrame)
	hub.Observe(intercept.KindDraw, e.onDraw)
	hub.Observe(intercept.KindClip, e.onClip)
	hub.Observe(intercept.KindNavigation, e.onNavigation)
	hub.Observe(intercept.KindInput, e.onInput)

	if deps.Endpoint != nil {
		deps.Endpoint.Handle(messaging.KindRequestCanvasInfo, func(messaging.Envelope) {
			e.announce()
		})
		deps.Endpoint.Handle(messaging.KindBaselineReset, func(messaging.Envelope) {
			if e.initialized {
				e.tracker.ForceResolve()
				e.rec.ResetBaseline()
			}
		})
	}

	return e, nil
}

// Hub returns the interception hub so the host harness can wrap its draw,
// clip, frame and navigation primitives.
func (e *Engine) Hub() *intercept.Hub { return e.hub }

// SurfaceTag returns the opaque tag of the bound surface, empty before
// detection.
func (e *Engine) SurfaceTag() string { return e.loc.Tag() }

// Tracker returns the viewport tracker, nil before initialization.
func (e *Engine) Tracker() *viewport.Tracker { return e.tracker }

// Start begins surface detection. Initialization happens on the scheduler
// goroutine once a qualifying surface appears, however long that takes.
func (e *Engine) Start() {
	e.loc.Start(e.onSurface)
}

// IsValid reports whether the engine is initialized and its surface is
// still in the document. False after initialization means the page tore
// the surface down and the owner must Cleanup and Start again.
func (e *Engine) IsValid() bool {
	return e.initialized && e.loc.IsValid()
}

// Cleanup releases the overlay, detection loop and tracker listener. The
// engine can be restarted with Start afterwards.
func (e *Engine) Cleanup() {
	if e.tracker != nil {
		e.tracker.RemoveChangeListener(e.listener)
		e.tracker = nil
	}
	e.loc.Cleanup()
	e.comp = nil
	e.initialized = false
}

func (e *Engine) onSurface(s host.Surface) {
	e.accelerated = s.Kind() == host.ContextAccelerated

	mode := viewport.ModeTransform
	if e.accelerated {
		mode = viewport.ModeMovement
	}
	e.tracker = viewport.NewTracker(viewport.Dependencies{
		Doc:     e.deps.Doc,
		Sched:   e.deps.Sched,
		Surface: s,
		Mode:    mode,
		Log:     logging.Channel(e.log, "viewport"),
	})
	e.tracker.RefreshGroundTruth()
	e.listener = e.tracker.AddChangeListener(e.onViewportChange)

	e.comp = compositor.New(e.tracker, e.deps.Labels, projection.TileSize, logging.Channel(e.log, "render"))

	if e.accelerated {
		overlay, err := e.loc.EnsureOverlay(e.redrawOverlay)
		if err != nil {
			e.log.Error("overlay creation failed", "err", err)
			return
		}
		e.comp.RedrawOverlay(overlay)
		e.loc.ShowOverlay()
		if e.deps.Endpoint != nil {
			_ = e.deps.Endpoint.Send(messaging.KindRegisterOverlay, messaging.RegisterOverlayPayload{
				SurfaceTag: e.loc.Tag(),
			})
		}
	}

	e.initialized = true
	e.log.Info("engine initialized",
		"context", s.Kind().String(),
		"w", s.Width(), "h", s.Height(),
		"tag", e.loc.Tag())
	e.announce()
}

func (e *Engine) announce() {
	if e.deps.Endpoint == nil || e.loc.Surface() == nil {
		return
	}
	s := e.loc.Surface()
	_ = e.deps.Endpoint.Send(messaging.KindCanvasDetected, messaging.CanvasDetectedPayload{
		SurfaceTag:  e.loc.Tag(),
		ContextKind: s.Kind().String(),
		Width:       s.Width(),
		Height:      s.Height(),
		TileAligned: s.Width()%projection.TileSize == 0 && s.Height()%projection.TileSize == 0,
		Supported:   true,
	})
}

func (e *Engine) onFrame(intercept.Event) {
	if !e.initialized {
		return
	}
	e.tracker.RefreshTransforms()
	if e.accelerated {
		e.rec.OnFrameBoundary()
	} else {
		e.seq.OnFrameBoundary()
	}
	e.flushStats()
}

func (e *Engine) onDraw(ev intercept.Event) {
	if !e.initialized || e.accelerated {
		return
	}
	d := ev.Draw
	if d.Surface != e.loc.Surface() {
		return
	}
	switch e.seq.ObserveDraw(d) {
	case reconcile.PaintNow:
		e.comp.ComposeDraw(d)
		e.painted++
	case reconcile.Defer:
		// Transforms looked stale; retry after the current callback batch
		// so RefreshTransforms has had a chance to catch up.
		e.deferred++
		e.deps.Sched.NextTick(func() {
			if e.initialized {
				e.comp.ComposeDraw(d)
			}
		})
	case reconcile.Skip:
		e.skipped++
	}
}

func (e *Engine) onClip(ev intercept.Event) {
	if !e.initialized || !e.accelerated {
		return
	}
	e.clips++
	e.rec.ObserveClip(*ev.Clip)
}

func (e *Engine) onNavigation(ev intercept.Event) {
	if !e.initialized {
		return
	}
	e.log.Debug("navigation observed", "url", ev.Navigation.URL, "replace", ev.Navigation.Replace)
	e.tracker.ForceResolve()
	e.rec.ResetBaseline()
	if e.deps.Endpoint != nil {
		_ = e.deps.Endpoint.Send(messaging.KindBaselineReset, nil)
	}
}

func (e *Engine) onInput(ev intercept.Event) {
	if !e.initialized {
		return
	}
	e.tracker.NoteInteraction()
	if e.accelerated {
		// Zoom may be about to change; the overlay's translate would be
		// wrong until the URL settles.
		e.loc.HideOverlay()
	}
}

func (e *Engine) onMovement(m reconcile.Movement) {
	if e.tracker == nil {
		return
	}
	e.tracker.SetMovement(m.AccumX, m.AccumY)

	if e.accelerated {
		zoom := e.tracker.State().Zoom
		if zoom != math.Trunc(zoom) {
			// Known limitation: translate offsets are wrong at fractional
			// zoom, so the overlay stays hidden while the map moves.
			e.loc.HideOverlay()
		} else {
			e.loc.SetOverlayTranslate(m.AccumX, m.AccumY)
			if !e.tracker.InteractionPending() {
				e.loc.ShowOverlay()
			}
		}
	}

	if e.deps.Telemetry != nil {
		_ = e.deps.Telemetry.ReportFrame(context.Background(), telemetry.FrameStats{
			Tiles:     e.clips,
			MovementX: m.AccumX,
			MovementY: m.AccumY,
			Wrapped:   m.Wrapped,
		})
	}
	if e.deps.Endpoint != nil {
		_ = e.deps.Endpoint.Send(messaging.KindTileMovement, messaging.TileMovementPayload{
			X:       m.AccumX,
			Y:       m.AccumY,
			Wrapped: m.Wrapped,
		})
	}
}

func (e *Engine) onViewportChange(kind viewport.ChangeKind) {
	if kind != viewport.ChangeZoomResolved {
		return
	}
	if e.accelerated {
		// Ground truth was re-read; movement accumulates from the new
		// baseline and the overlay snaps back to the origin.
		e.rec.ResetBaseline()
		e.redrawOverlay()
		e.loc.ShowOverlay()
	}
}

func (e *Engine) redrawOverlay() {
	if e.comp == nil {
		return
	}
	if overlay := e.loc.Overlay(); overlay != nil {
		e.comp.RedrawOverlay(overlay)
	}
}

func (e *Engine) flushStats() {
	defer func() {
		e.painted, e.deferred, e.skipped, e.clips = 0, 0, 0, 0
	}()
	if e.deps.Telemetry == nil || e.painted+e.deferred+e.skipped == 0 {
		return
	}
	var zoom float64
	if e.tracker != nil {
		zoom = e.tracker.State().Zoom
	}
	mode := "raster"
	if e.accelerated {
		mode = "accelerated"
	}
	_ = e.deps.Telemetry.ReportPaint(context.Background(), telemetry.PaintStats{
		Mode:     mode,
		Painted:  e.painted,
		Deferred: e.deferred,
		Skipped:  e.skipped,
		Zoom:     zoom,
	})
}
