// Package label holds the label data model and the offscreen pre-rendering
// that caches each label's pixel buffer and dimensions so text is never
// re-measured during compositing.
package label

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"

	"github.com/tilelabel/overlay/internal/geo"
	"github.com/tilelabel/overlay/internal/geometry"
)

// BackgroundMode selects how the label plate is drawn behind the text.
type BackgroundMode string

const (
	BackgroundNone  BackgroundMode = "none"
	BackgroundPlate BackgroundMode = "plate"
)

// Style carries the per-label display overrides.
type Style struct {
	Color      string         `json:"color,omitempty"`
	Scale      float64        `json:"scale,omitempty"`
	Rotation   float64        `json:"rotation,omitempty"`
	Background BackgroundMode `json:"background,omitempty"`
	OffsetX    float64        `json:"offsetX,omitempty"`
	OffsetY    float64        `json:"offsetY,omitempty"`
}

// Label is one placed annotation. Immutable after load.
type Label struct {
	Position geo.LatLng
	// Text may contain explicit line breaks.
	Text string
	// MinZoom and MaxZoom bound visibility as the half-open [MinZoom, MaxZoom).
	MinZoom float64
	MaxZoom float64
	Style   Style

	rendered *Rendered
}

// VisibleAt reports whether the label is shown at the given zoom. The window
// is half-open so a label is visible at exactly MinZoom but not at MaxZoom.
func (l *Label) VisibleAt(zoom float64) bool {
	return zoom >= l.MinZoom && zoom < l.MaxZoom
}

// Rendered is the cached offscreen raster of a label.
type Rendered struct {
	Buffer *image.RGBA
	Width  int
	Height int
}

// Rendered returns the label's cached raster, rendering it on first use.
func (l *Label) Rendered() *Rendered {
	if l.rendered == nil {
		l.rendered = render(l)
	}
	return l.rendered
}

// ScreenRect returns the label's destination rectangle given its anchor
// position on the canvas, applying the style's pixel offset and centering
// the raster on the anchor.
func (l *Label) ScreenRect(anchor geometry.Point) geometry.Rect {
	r := l.Rendered()
	return geometry.Rect{
		X: anchor.X - float64(r.Width)/2 + l.Style.OffsetX,
		Y: anchor.Y - float64(r.Height)/2 + l.Style.OffsetY,
		W: float64(r.Width),
		H: float64(r.Height),
	}
}

const (
	padX       = 4
	padY       = 2
	lineHeight = 14
)

// render measures and draws the label text into a fresh RGBA buffer using
// the built-in bitmap face. Font loading is a host concern outside this
// engine; the bitmap face keeps rendering self-contained.
func render(l *Label) *Rendered {
	face := basicfont.Face7x13
	lines := strings.Split(l.Text, "\n")

	width := 0
	for _, line := range lines {
		adv := font.MeasureString(face, line).Ceil()
		if adv > width {
			width = adv
		}
	}
	width += 2 * padX
	height := len(lines)*lineHeight + 2*padY
	if width < 2*padX+1 {
		width = 2*padX + 1
	}

	buf := image.NewRGBA(image.Rect(0, 0, width, height))

	if l.Style.Background == BackgroundPlate {
		plate := color.RGBA{R: 255, G: 255, B: 255, A: 200}
		draw.Draw(buf, buf.Bounds(), image.NewUniform(plate), image.Point{}, draw.Src)
	}

	textColor := parseColor(l.Style.Color)
	d := &font.Drawer{
		Dst:  buf,
		Src:  image.NewUniform(textColor),
		Face: face,
	}
	for i, line := range lines {
		d.Dot = fixed.P(padX, padY+face.Ascent+i*lineHeight)
		d.DrawString(line)
	}

	buf = applyStyleTransform(buf, l.Style)
	b := buf.Bounds()
	return &Rendered{Buffer: buf, Width: b.Dx(), Height: b.Dy()}
}

// applyStyleTransform resamples the rendered text through the style's scale
// and rotation. The output buffer is sized to the rotated bounding box so no
// corner is clipped.
func applyStyleTransform(buf *image.RGBA, st Style) *image.RGBA {
	s := st.Scale
	if s <= 0 {
		s = 1
	}
	if s == 1 && st.Rotation == 0 {
		return buf
	}

	theta := st.Rotation * math.Pi / 180
	sin, cos := math.Sincos(theta)
	// Snap the residue of right-angle rotations so their bounding boxes
	// come out exact instead of one pixel oversized.
	if math.Abs(sin) < 1e-12 {
		sin = 0
	}
	if math.Abs(cos) < 1e-12 {
		cos = 0
	}
	w := float64(buf.Bounds().Dx())
	h := float64(buf.Bounds().Dy())

	outW := int(math.Ceil(math.Abs(w*s*cos) + math.Abs(h*s*sin)))
	outH := int(math.Ceil(math.Abs(w*s*sin) + math.Abs(h*s*cos)))
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}

	// Rotate about the raster center, then translate the center into the
	// middle of the output buffer.
	a, b := s*cos, -s*sin
	d, e := s*sin, s*cos
	aff := f64.Aff3{
		a, b, float64(outW)/2 - (a*w/2 + b*h/2),
		d, e, float64(outH)/2 - (d*w/2 + e*h/2),
	}

	out := image.NewRGBA(image.Rect(0, 0, outW, outH))
	xdraw.ApproxBiLinear.Transform(out, aff, buf, buf.Bounds(), xdraw.Over, nil)
	return out
}

// parseColor decodes a "#rrggbb" style string, defaulting to near-black.
func parseColor(s string) color.RGBA {
	c := color.RGBA{R: 32, G: 32, B: 32, A: 255}
	if len(s) != 7 || s[0] != '#' {
		return c
	}
	hex := func(b byte) (uint8, bool) {
		switch {
		case b >= '0' && b <= '9':
			return b - '0', true
		case b >= 'a' && b <= 'f':
			return b - 'a' + 10, true
		case b >= 'A' && b <= 'F':
			return b - 'A' + 10, true
		}
		return 0, false
	}
	var vals [3]uint8
	for i := 0; i < 3; i++ {
		hi, ok1 := hex(s[1+2*i])
		lo, ok2 := hex(s[2+2*i])
		if !ok1 || !ok2 {
			return c
		}
		vals[i] = hi<<4 | lo
	}
	return color.RGBA{R: vals[0], G: vals[1], B: vals[2], A: 255}
}

// Set is the read-only label collection shared across compositor runs.
type Set struct {
	labels []*Label
}

// NewSet wraps the loaded labels. Rasters are rendered eagerly so the
// compositing path never measures text.
func NewSet(labels []*Label) *Set {
	for _, l := range labels {
		l.Rendered()
	}
	return &Set{labels: labels}
}

// Len returns the number of labels.
func (s *Set) Len() int { return len(s.labels) }

// All returns every label.
func (s *Set) All() []*Label { return s.labels }

// VisibleAt returns the labels whose zoom window contains the given zoom.
func (s *Set) VisibleAt(zoom float64) []*Label {
	var out []*Label
	for _, l := range s.labels {
		if l.VisibleAt(zoom) {
			out = append(out, l)
		}
	}
	return out
}
