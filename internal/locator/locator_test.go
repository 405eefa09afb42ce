package locator

import (
	"testing"
	"time"

	"github.com/tilelabel/overlay/internal/host"
	"github.com/tilelabel/overlay/internal/host/sim"
)

func newLocator(doc *sim.Document, sched *sim.Scheduler) *Locator {
	return New(Dependencies{Doc: doc, Sched: sched})
}

func TestFind_RasterHeuristic(t *testing.T) {
	cases := []struct {
		name string
		kind host.ContextKind
		w, h int
		want bool
	}{
		{"large tile-multiple raster", host.ContextRaster, 512, 512, true},
		{"wide map canvas", host.ContextRaster, 1024, 768, true},
		{"icon sized", host.ContextRaster, 256, 256, false},
		{"not tile aligned", host.ContextRaster, 300, 200, false},
		{"accelerated placeholder", host.ContextAccelerated, 300, 150, true},
		{"accelerated after resize", host.ContextAccelerated, 1024, 768, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := sim.NewDocument("https://maps.example")
			doc.AddSurface(sim.NewSurface(tc.kind, tc.w, tc.h))

			_, ok := newLocator(doc, sim.NewScheduler()).Find()
			if ok != tc.want {
				t.Errorf("qualifies = %v, want %v", ok, tc.want)
			}
		})
	}
}

func TestFind_DetachedRasterRejected(t *testing.T) {
	doc := sim.NewDocument("https://maps.example")
	s := sim.NewSurface(host.ContextRaster, 512, 512)
	s.Detach()
	doc.AddSurface(s)

	if _, ok := newLocator(doc, sim.NewScheduler()).Find(); ok {
		t.Error("detached surfaces must not qualify")
	}
}

func TestFind_FirstMatchWinsAndTags(t *testing.T) {
	doc := sim.NewDocument("https://maps.example")
	first := sim.NewSurface(host.ContextRaster, 512, 512)
	second := sim.NewSurface(host.ContextRaster, 1024, 1024)
	doc.AddSurface(first)
	doc.AddSurface(second)

	l := newLocator(doc, sim.NewScheduler())
	s, ok := l.Find()
	if !ok || s != host.Surface(first) {
		t.Fatal("expected the first qualifying surface")
	}
	if first.Tag() == "" {
		t.Error("detected surface must be tagged")
	}
	if second.Tag() != "" {
		t.Error("detection is single-shot, later candidates stay untagged")
	}

	again, ok := l.Find()
	if !ok || again != s {
		t.Error("repeat lookups must return the detected surface without rescanning")
	}
}

func TestStart_RetriesWithBackoffUntilFound(t *testing.T) {
	doc := sim.NewDocument("https://maps.example")
	sched := sim.NewScheduler()
	l := newLocator(doc, sched)

	var found host.Surface
	l.Start(func(s host.Surface) { found = s })
	if found != nil {
		t.Fatal("nothing to find yet")
	}

	// First retry at ~100ms fails, surface appears before the ~200ms retry.
	sched.Advance(100 * time.Millisecond)
	surface := sim.NewSurface(host.ContextRaster, 512, 512)
	doc.AddSurface(surface)
	if found != nil {
		t.Fatal("no retry has fired since the surface appeared")
	}

	sched.Advance(200 * time.Millisecond)
	if found != host.Surface(surface) {
		t.Fatal("backoff retry should have detected the surface")
	}
	if l.loop.Active() {
		t.Error("loop must stop after detection")
	}
}

func TestIsValid_FalseAfterDetach(t *testing.T) {
	doc := sim.NewDocument("https://maps.example")
	s := sim.NewSurface(host.ContextRaster, 512, 512)
	doc.AddSurface(s)

	l := newLocator(doc, sim.NewScheduler())
	if _, ok := l.Find(); !ok {
		t.Fatal("detection failed")
	}
	if !l.IsValid() {
		t.Fatal("freshly detected surface should be valid")
	}

	s.Detach()
	if l.IsValid() {
		t.Error("a torn-down surface must invalidate the locator")
	}
}

func TestEnsureOverlay_ScalesByDevicePixelRatio(t *testing.T) {
	doc := sim.NewDocument("https://maps.example")
	doc.SetDevicePixelRatio(2)
	s := sim.NewSurface(host.ContextAccelerated, 300, 150)
	doc.AddSurface(s)

	l := newLocator(doc, sim.NewScheduler())
	if _, ok := l.Find(); !ok {
		t.Fatal("detection failed")
	}

	ov, err := l.EnsureOverlay(nil)
	if err != nil {
		t.Fatal(err)
	}
	if ov.Width() != 600 || ov.Height() != 300 {
		t.Errorf("overlay %dx%d, want 600x300", ov.Width(), ov.Height())
	}
}

func TestEnsureOverlay_ResyncsOnLayoutChange(t *testing.T) {
	doc := sim.NewDocument("https://maps.example")
	s := sim.NewSurface(host.ContextRaster, 512, 512)
	doc.AddSurface(s)

	l := newLocator(doc, sim.NewScheduler())
	l.Find()

	resized := 0
	first, err := l.EnsureOverlay(func() { resized++ })
	if err != nil {
		t.Fatal(err)
	}
	l.HideOverlay()

	s.Resize(1024, 768)
	doc.NotifyResize(s)

	ov := l.Overlay()
	if ov == first {
		t.Fatal("overlay must be replaced when the surface layout changes")
	}
	if ov.Width() != 1024 || ov.Height() != 768 {
		t.Errorf("overlay %dx%d, want 1024x768", ov.Width(), ov.Height())
	}
	if ov.Visible() {
		t.Error("visibility must carry over to the replacement overlay")
	}
	if resized != 1 {
		t.Errorf("resize callback fired %d times, want 1", resized)
	}
}

func TestOverlayControls(t *testing.T) {
	doc := sim.NewDocument("https://maps.example")
	s := sim.NewSurface(host.ContextRaster, 512, 512)
	doc.AddSurface(s)

	l := newLocator(doc, sim.NewScheduler())
	l.Find()
	if _, err := l.EnsureOverlay(nil); err != nil {
		t.Fatal(err)
	}

	l.HideOverlay()
	if l.Overlay().Visible() {
		t.Error("HideOverlay")
	}
	l.ShowOverlay()
	if !l.Overlay().Visible() {
		t.Error("ShowOverlay")
	}
	l.SetOverlayTranslate(12, -7)
	if x, y := l.Overlay().Translate(); x != 12 || y != -7 {
		t.Errorf("translate (%v, %v), want (12, -7)", x, y)
	}
}

func TestCleanup_StopsRetryLoop(t *testing.T) {
	doc := sim.NewDocument("https://maps.example")
	sched := sim.NewScheduler()
	l := newLocator(doc, sched)

	l.Start(func(host.Surface) {})
	l.Cleanup()

	doc.AddSurface(sim.NewSurface(host.ContextRaster, 512, 512))
	sched.Advance(time.Minute)
	if l.Surface() != nil {
		t.Error("no detection may happen after cleanup")
	}
}
