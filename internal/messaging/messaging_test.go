package messaging

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const origin = "https://maps.example"

func TestDeliver_RejectsForeignOrigin(t *testing.T) {
	e := NewEndpoint(origin, nil)

	got := 0
	e.Handle(KindTileMovement, func(Envelope) { got++ })

	env, err := NewEnvelope("https://evil.example", KindTileMovement, TileMovementPayload{X: 5})
	require.NoError(t, err)
	assert.False(t, e.Deliver(env))
	assert.Zero(t, e.Dispatch())
	assert.Zero(t, got)
}

func TestDeliver_DispatchesMatchingOrigin(t *testing.T) {
	e := NewEndpoint(origin, nil)

	var moves []TileMovementPayload
	e.Handle(KindTileMovement, func(env Envelope) {
		p, err := DecodePayload[TileMovementPayload](env)
		require.NoError(t, err)
		moves = append(moves, p)
	})

	for _, x := range []float64{3, -7} {
		env, err := NewEnvelope(origin, KindTileMovement, TileMovementPayload{X: x, Y: 1})
		require.NoError(t, err)
		require.True(t, e.Deliver(env))
	}

	assert.Equal(t, 2, e.Dispatch())
	require.Len(t, moves, 2)
	assert.Equal(t, float64(3), moves[0].X)
	assert.Equal(t, float64(-7), moves[1].X)
}

func TestDeliver_DropsWhenInboxFull(t *testing.T) {
	e := NewEndpoint(origin, nil)

	env, err := NewEnvelope(origin, KindTileMovement, TileMovementPayload{X: 1})
	require.NoError(t, err)

	for i := 0; i < inboxSize; i++ {
		require.True(t, e.Deliver(env))
	}
	assert.False(t, e.Deliver(env), "delivery past capacity must drop, not block")

	assert.Equal(t, inboxSize, e.Dispatch())
	assert.True(t, e.Deliver(env), "drained inbox accepts again")
}

func TestDispatch_OnlyMatchingKind(t *testing.T) {
	e := NewEndpoint(origin, nil)

	resets := 0
	e.Handle(KindBaselineReset, func(Envelope) { resets++ })

	env, err := NewEnvelope(origin, KindRequestCanvasInfo, nil)
	require.NoError(t, err)
	e.Deliver(env)

	assert.Equal(t, 1, e.Dispatch(), "unhandled kinds still drain")
	assert.Zero(t, resets)
}

type captureTransport struct {
	sent []Envelope
}

func (c *captureTransport) Send(env Envelope) error {
	c.sent = append(c.sent, env)
	return nil
}

func TestSend_StampsOriginAndPayload(t *testing.T) {
	e := NewEndpoint(origin, nil)
	tr := &captureTransport{}
	e.Bind(tr)

	require.NoError(t, e.Send(KindCanvasDetected, CanvasDetectedPayload{
		SurfaceTag:  "ovl-1234",
		ContextKind: "raster",
		Width:       1024,
		Height:      768,
		TileAligned: true,
		Supported:   true,
	}))

	require.Len(t, tr.sent, 1)
	env := tr.sent[0]
	assert.Equal(t, KindCanvasDetected, env.Kind)
	assert.Equal(t, origin, env.Origin)

	p, err := DecodePayload[CanvasDetectedPayload](env)
	require.NoError(t, err)
	assert.Equal(t, "ovl-1234", p.SurfaceTag)
	assert.True(t, p.TileAligned)
}

func TestSend_WithoutTransportFails(t *testing.T) {
	e := NewEndpoint(origin, nil)
	assert.Error(t, e.Send(KindBaselineReset, nil))
}

func TestEnvelopeWireShape(t *testing.T) {
	env, err := NewEnvelope(origin, KindRegisterOverlay, RegisterOverlayPayload{SurfaceTag: "ovl-9"})
	require.NoError(t, err)

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, KindRegisterOverlay, decoded.Kind)

	p, err := DecodePayload[RegisterOverlayPayload](decoded)
	require.NoError(t, err)
	assert.Equal(t, "ovl-9", p.SurfaceTag)
}
