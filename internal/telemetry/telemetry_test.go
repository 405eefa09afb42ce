package telemetry

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_DisabledFails(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("influx.enabled", false)

	m := NewManager(zerolog.Nop(), "")
	assert.Error(t, m.Connect())
}

func TestWritePoint_BackupWhenInvalid(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(zerolog.Nop(), "")
	m.BackupWriter = gzip.NewWriter(&buf)

	require.NoError(t, m.ReportFrame(context.Background(), FrameStats{
		Tiles:     9,
		MovementX: -112,
		MovementY: 3,
		Wrapped:   true,
	}))
	require.NoError(t, m.ReportPaint(context.Background(), PaintStats{
		Mode: "raster", Painted: 4, Deferred: 1, Zoom: 12,
	}))
	require.NoError(t, m.Close())

	zr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "frame,wrapped=true")
	assert.Contains(t, out, "tiles=9i")
	assert.Contains(t, out, "paint,mode=raster")
	assert.Contains(t, out, "painted=4i")
}

func TestReportPaint_ModeDefaultsWhenUnset(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(zerolog.Nop(), "")
	m.BackupWriter = gzip.NewWriter(&buf)

	require.NoError(t, m.ReportPaint(context.Background(), PaintStats{Painted: 1}))
	require.NoError(t, m.Close())

	zr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	assert.Contains(t, string(data), "paint,mode=unknown")
}

func TestWritePoint_NoBackupNoClient(t *testing.T) {
	m := NewManager(zerolog.Nop(), "")
	err := m.ReportPaint(context.Background(), PaintStats{})
	assert.Error(t, err)
}
