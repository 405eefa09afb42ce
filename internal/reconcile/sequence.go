package reconcile

import (
	"log/slog"
	"math/bits"

	"github.com/tilelabel/overlay/internal/intercept"
)

// Decision tells the compositor how to handle a draw.
type Decision int

const (
	// PaintNow means the tracked transform is trustworthy.
	PaintNow Decision = iota
	// Defer means the tile content changed and the transform refresh may
	// not have landed; retry after roughly one tick.
	Defer
	// Skip means the draw is not label-overlappable content.
	Skip
)

// sampleStride is the prime skip used to approximate random pixel sampling.
const sampleStride = 101

// SequenceDetector classifies raster-mode draw sequences by hashing sampled
// pixel content of the first tile in each sequence. A hash change implies a
// pan or zoom whose transform refresh may still be in flight.
type SequenceDetector struct {
	unit float64

	inSequence bool
	lastHash   uint32
	haveHash   bool

	log *slog.Logger
}

// NewSequenceDetector creates a detector for the given tile unit.
func NewSequenceDetector(unit float64, log *slog.Logger) *SequenceDetector {
	if log == nil {
		log = slog.Default()
	}
	return &SequenceDetector{unit: unit, log: log}
}

// OnFrameBoundary ends any in-progress sequence.
func (s *SequenceDetector) OnFrameBoundary() {
	s.inSequence = false
}

// ObserveDraw classifies one intercepted draw.
func (s *SequenceDetector) ObserveDraw(e *intercept.DrawEvent) Decision {
	// Draws much larger than a tile are full-canvas repaints: they end the
	// sequence and are never overlappable content.
	if e.Dest.W > 2*s.unit && e.Dest.H > 2*s.unit {
		s.inSequence = false
		return Skip
	}

	if !s.tileShaped(e) {
		return PaintNow
	}

	if s.inSequence {
		return PaintNow
	}
	s.inSequence = true

	h, ok := s.sample(e)
	if !ok {
		// Unreadable content: treat as unchanged rather than stalling.
		return PaintNow
	}
	changed := s.haveHash && h != s.lastHash
	s.lastHash = h
	s.haveHash = true

	if changed {
		s.log.Debug("tile content changed, deferring paint", "hash", h)
		return Defer
	}
	return PaintNow
}

func (s *SequenceDetector) tileShaped(e *intercept.DrawEvent) bool {
	return e.Dest.W == s.unit && e.Dest.H == s.unit
}

// sample folds every sampleStride-th RGBA byte of the draw's source content
// into a rolling hash with bit rotation.
func (s *SequenceDetector) sample(e *intercept.DrawEvent) (uint32, bool) {
	if e.Src == nil {
		return 0, false
	}
	pix, err := e.Src.RGBA()
	if err != nil {
		s.log.Debug("pixel sampling failed", "error", err)
		return 0, false
	}
	var h uint32
	for i := 0; i < len(pix); i += sampleStride {
		h = bits.RotateLeft32(h, 5) ^ uint32(pix[i])
	}
	return h, true
}
