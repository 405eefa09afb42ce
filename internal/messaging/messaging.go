// Package messaging defines the typed message contract used when the
// interception layer runs in a different execution context than the
// tracker, plus the origin-checked endpoint both sides talk through.
package messaging

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tilelabel/overlay/internal/channel"
)

// Kind identifies a cross-context message type.
type Kind string

const (
	// KindCanvasDetected announces the detected rendering surface.
	KindCanvasDetected Kind = "canvas_detected"
	// KindRequestCanvasInfo asks the interception side to re-announce.
	KindRequestCanvasInfo Kind = "request_canvas_info"
	// KindTileMovement carries one reconciled movement vector.
	KindTileMovement Kind = "tile_movement"
	// KindBaselineReset signals that accumulated movement was zeroed.
	KindBaselineReset Kind = "baseline_reset"
	// KindRegisterOverlay registers the overlay surface by tag.
	KindRegisterOverlay Kind = "register_overlay"
)

// Envelope is the wire shape of every message. Origin is stamped by the
// sender and checked against the local document origin on delivery.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CanvasDetectedPayload describes the surface the interception side found.
type CanvasDetectedPayload struct {
	SurfaceTag  string `json:"surfaceTag"`
	ContextKind string `json:"contextKind"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	TileAligned bool   `json:"tileAligned"`
	Supported   bool   `json:"supported"`
}

// TileMovementPayload is one accumulated movement vector.
type TileMovementPayload struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Wrapped bool    `json:"wrapped"`
}

// RegisterOverlayPayload names the overlay surface by its opaque tag.
type RegisterOverlayPayload struct {
	SurfaceTag string `json:"surfaceTag"`
}

// NewEnvelope builds an origin-stamped envelope around a payload. A nil
// payload produces an envelope with no payload bytes.
func NewEnvelope(origin string, kind Kind, payload any) (Envelope, error) {
	env := Envelope{Kind: kind, Origin: origin}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	env.Payload = raw
	return env, nil
}

// DecodePayload unmarshals an envelope's payload into T.
func DecodePayload[T any](env Envelope) (T, error) {
	var v T
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	return v, nil
}

// Handler consumes one validated envelope.
type Handler func(Envelope)

// Transport carries envelopes to the peer context.
type Transport interface {
	Send(Envelope) error
}

// Endpoint queues inbound envelopes and dispatches them to registered
// handlers. Delivery may happen on any goroutine; Dispatch is expected to
// run on the host scheduler so handlers see the single-threaded model the
// rest of the engine assumes.
type Endpoint struct {
	origin    string
	inbox     channel.Channel[Envelope]
	handlers  map[Kind][]Handler
	transport Transport
	log       *slog.Logger
}

const inboxSize = 256

func NewEndpoint(origin string, log *slog.Logger) *Endpoint {
	if log == nil {
		log = slog.Default()
	}
	return &Endpoint{
		origin:   origin,
		inbox:    channel.New[Envelope](inboxSize),
		handlers: make(map[Kind][]Handler),
		log:      log,
	}
}

// Origin returns the origin this endpoint accepts and stamps.
func (e *Endpoint) Origin() string { return e.origin }

// Bind attaches the outbound transport.
func (e *Endpoint) Bind(t Transport) { e.transport = t }

// Handle registers a handler for one message kind.
func (e *Endpoint) Handle(kind Kind, h Handler) {
	e.handlers[kind] = append(e.handlers[kind], h)
}

// Deliver queues an inbound envelope. Envelopes from any other origin are
// dropped; a mismatch means the message came from an embedded frame or
// another page and must not drive the overlay. A full inbox also drops,
// since delivery may run on a transport goroutine that must not block.
func (e *Endpoint) Deliver(env Envelope) bool {
	if env.Origin != e.origin {
		e.log.Debug("dropping message from foreign origin",
			"kind", string(env.Kind), "origin", env.Origin)
		return false
	}
	if !e.inbox.Send(env) {
		e.log.Warn("inbox full, dropping message",
			"kind", string(env.Kind), "dropped", e.inbox.Dropped())
		return false
	}
	return true
}

// Dispatch drains the inbox and runs handlers, returning the number of
// envelopes processed.
func (e *Endpoint) Dispatch() int {
	n := 0
	for {
		select {
		case env := <-e.inbox.Receive():
			for _, h := range e.handlers[env.Kind] {
				h(env)
			}
			n++
		default:
			return n
		}
	}
}

// Send stamps the local origin on a payload and hands it to the transport.
func (e *Endpoint) Send(kind Kind, payload any) error {
	if e.transport == nil {
		return fmt.Errorf("send %s: no transport bound", kind)
	}
	env, err := NewEnvelope(e.origin, kind, payload)
	if err != nil {
		return err
	}
	return e.transport.Send(env)
}
