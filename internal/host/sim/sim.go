// Package sim is an in-memory host implementation. It backs surfaces with
// image.RGBA buffers and drives timers from a manually advanced clock, so
// engine behavior is fully deterministic in tests and in the overlaysim
// harness.
package sim

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sort"
	"sync"
	"time"

	"github.com/tilelabel/overlay/internal/geometry"
	"github.com/tilelabel/overlay/internal/host"
)

// ErrUnreadable is returned by ImageData.RGBA for tainted content.
var ErrUnreadable = errors.New("pixel content not readable")

// Surface is an in-memory host.Surface.
type Surface struct {
	kind            host.ContextKind
	buf             *image.RGBA
	displayW        float64
	displayH        float64
	attached        bool
	tag             string
	transform       geometry.Transform
	parentTransform geometry.Transform
	parentW         float64
	parentH         float64
	visible         bool
	translateX      float64
	translateY      float64
	failDraw        bool
}

// NewSurface creates an attached surface with equal backing and display
// dimensions.
func NewSurface(kind host.ContextKind, w, h int) *Surface {
	return &Surface{
		kind:     kind,
		buf:      image.NewRGBA(image.Rect(0, 0, w, h)),
		displayW: float64(w),
		displayH: float64(h),
		attached: true,
		visible:  true,
		parentW:  float64(w),
		parentH:  float64(h),
	}
}

func (s *Surface) Kind() host.ContextKind { return s.kind }
func (s *Surface) Width() int             { return s.buf.Bounds().Dx() }
func (s *Surface) Height() int            { return s.buf.Bounds().Dy() }
func (s *Surface) DisplayWidth() float64  { return s.displayW }
func (s *Surface) DisplayHeight() float64 { return s.displayH }
func (s *Surface) Attached() bool         { return s.attached }
func (s *Surface) Tag() string            { return s.tag }
func (s *Surface) SetTag(tag string)      { s.tag = tag }

func (s *Surface) Transform() geometry.Transform       { return s.transform }
func (s *Surface) ParentTransform() geometry.Transform { return s.parentTransform }
func (s *Surface) ParentSize() (float64, float64)      { return s.parentW, s.parentH }

// SetTransform updates the surface's own computed transform.
func (s *Surface) SetTransform(t geometry.Transform) { s.transform = t }

// SetParentTransform updates the container's computed transform.
func (s *Surface) SetParentTransform(t geometry.Transform) { s.parentTransform = t }

// SetParentSize updates the container dimensions.
func (s *Surface) SetParentSize(w, h float64) { s.parentW, s.parentH = w, h }

// Detach simulates the surface being removed from the document.
func (s *Surface) Detach() { s.attached = false }

// FailDraws makes subsequent DrawRGBA calls return an error, simulating a
// security-restricted destination.
func (s *Surface) FailDraws(fail bool) { s.failDraw = fail }

// Resize replaces the backing store and display dimensions.
func (s *Surface) Resize(w, h int) {
	s.buf = image.NewRGBA(image.Rect(0, 0, w, h))
	s.displayW = float64(w)
	s.displayH = float64(h)
}

func (s *Surface) DrawRGBA(src *image.RGBA, sr image.Rectangle, dst geometry.Rect) error {
	if s.failDraw {
		return ErrUnreadable
	}
	if dst.Empty() {
		return nil
	}
	dr := image.Rect(int(dst.X), int(dst.Y), int(dst.X+dst.W), int(dst.Y+dst.H))
	draw.Draw(s.buf, dr, src, sr.Min, draw.Over)
	return nil
}

func (s *Surface) Clear() error {
	if s.failDraw {
		return ErrUnreadable
	}
	b := s.buf.Bounds()
	draw.Draw(s.buf, b, image.Transparent, image.Point{}, draw.Src)
	return nil
}

func (s *Surface) SetVisible(v bool) { s.visible = v }
func (s *Surface) Visible() bool     { return s.visible }

func (s *Surface) SetTranslate(x, y float64)  { s.translateX, s.translateY = x, y }
func (s *Surface) Translate() (x, y float64)  { return s.translateX, s.translateY }

// Pixel returns the RGBA value at (x, y) on the backing store, for test
// assertions about painted content.
func (s *Surface) Pixel(x, y int) (r, g, b, a uint8) {
	c := s.buf.RGBAAt(x, y)
	return c.R, c.G, c.B, c.A
}

// ImageData wraps an image.RGBA as readable draw content.
type ImageData struct {
	Img     *image.RGBA
	Tainted bool
}

func (d *ImageData) Bounds() image.Rectangle { return d.Img.Bounds() }

func (d *ImageData) RGBA() ([]byte, error) {
	if d.Tainted {
		return nil, ErrUnreadable
	}
	return d.Img.Pix, nil
}

// Document is an in-memory host.Document.
type Document struct {
	mu        sync.Mutex
	surfaces  []host.Surface
	dpr       float64
	url       string
	origin    string
	observers map[host.Surface][]func()
}

// NewDocument creates an empty document with device pixel ratio 1.
func NewDocument(origin string) *Document {
	return &Document{
		dpr:       1,
		origin:    origin,
		observers: map[host.Surface][]func(){},
	}
}

// AddSurface inserts a surface into the document.
func (d *Document) AddSurface(s host.Surface) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.surfaces = append(d.surfaces, s)
}

// SetURL updates the document URL without firing navigation hooks; the
// interception layer owns navigation notification.
func (d *Document) SetURL(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
}

// SetDevicePixelRatio overrides the device pixel ratio.
func (d *Document) SetDevicePixelRatio(r float64) { d.dpr = r }

func (d *Document) Surfaces() []host.Surface {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]host.Surface, len(d.surfaces))
	copy(out, d.surfaces)
	return out
}

func (d *Document) CreateOverlay(near host.Surface, width, height int) (host.Surface, error) {
	if near == nil || !near.Attached() {
		return nil, fmt.Errorf("cannot create overlay: reference surface detached")
	}
	ov := NewSurface(host.ContextRaster, width, height)
	ov.displayW = near.DisplayWidth()
	ov.displayH = near.DisplayHeight()
	d.AddSurface(ov)
	return ov, nil
}

func (d *Document) DevicePixelRatio() float64 { return d.dpr }

func (d *Document) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

func (d *Document) Origin() string { return d.origin }

func (d *Document) ObserveResize(s host.Surface, fn func()) func() {
	d.mu.Lock()
	d.observers[s] = append(d.observers[s], fn)
	idx := len(d.observers[s]) - 1
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		obs := d.observers[s]
		if idx < len(obs) {
			obs[idx] = nil
		}
	}
}

// NotifyResize fires resize observers for a surface, simulating a layout
// size change.
func (d *Document) NotifyResize(s host.Surface) {
	d.mu.Lock()
	obs := append([]func(){}, d.observers[s]...)
	d.mu.Unlock()
	for _, fn := range obs {
		if fn != nil {
			fn()
		}
	}
}

type timer struct {
	id  host.TimerID
	at  time.Time
	seq int
	fn  func()
}

// Scheduler is a manually driven host.Scheduler. Timers fire only when the
// clock is advanced, in deadline order.
type Scheduler struct {
	now    time.Time
	nextID host.TimerID
	seq    int
	timers []*timer
	ticks  []func()
}

// NewScheduler creates a scheduler starting at a fixed instant.
func NewScheduler() *Scheduler {
	return &Scheduler{now: time.Unix(1700000000, 0)}
}

func (s *Scheduler) SetTimeout(d time.Duration, fn func()) host.TimerID {
	s.nextID++
	s.seq++
	s.timers = append(s.timers, &timer{id: s.nextID, at: s.now.Add(d), seq: s.seq, fn: fn})
	return s.nextID
}

func (s *Scheduler) ClearTimeout(id host.TimerID) {
	for i, t := range s.timers {
		if t.id == id {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) NextTick(fn func()) {
	s.ticks = append(s.ticks, fn)
}

func (s *Scheduler) Now() time.Time { return s.now }

// RunTicks drains the pending next-tick callbacks, including any they queue.
func (s *Scheduler) RunTicks() {
	for len(s.ticks) > 0 {
		batch := s.ticks
		s.ticks = nil
		for _, fn := range batch {
			fn()
		}
	}
}

// Advance moves the clock forward, firing due timers and ticks in order.
func (s *Scheduler) Advance(d time.Duration) {
	deadline := s.now.Add(d)
	for {
		s.RunTicks()
		next := s.nextDue(deadline)
		if next == nil {
			break
		}
		// remove before firing; the callback may reschedule
		for i, t := range s.timers {
			if t == next {
				s.timers = append(s.timers[:i], s.timers[i+1:]...)
				break
			}
		}
		if next.at.After(s.now) {
			s.now = next.at
		}
		next.fn()
	}
	s.now = deadline
	s.RunTicks()
}

func (s *Scheduler) nextDue(deadline time.Time) *timer {
	due := make([]*timer, 0, len(s.timers))
	for _, t := range s.timers {
		if !t.at.After(deadline) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

// PendingTimers returns the number of scheduled timeouts, for tests.
func (s *Scheduler) PendingTimers() int { return len(s.timers) }
