package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		appName string
		want    string
	}{
		{
			name:    "basic path",
			logsDir: "overlaylogs",
			appName: "overlaysim",
			want:    filepath.Join("overlaylogs", "overlaysim.20260212_213836.log"),
		},
		{
			name:    "relative path with dot",
			logsDir: "./overlaylogs",
			appName: "overlaysim",
			want:    filepath.Join(".", "overlaylogs", "overlaysim.20260212_213836.log"),
		},
		{
			name:    "absolute path",
			logsDir: filepath.Join("/var", "log", "overlay"),
			appName: "overlaysim",
			want:    filepath.Join("/var", "log", "overlay", "overlaysim.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.appName, sessionStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChannel_AddsComponentName(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	Channel(base, "render").Info("tile observed")

	var entry map[string]any
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "render", entry["channel"])
}

func TestAddSink_ReceivesRecords(t *testing.T) {
	var file, sink bytes.Buffer
	m := NewSlogManager()
	m.AddSink(&sink)
	m.Setup(&file, "info", nil)

	m.Logger().Info("to both")

	assert.Contains(t, file.String(), "to both")
	assert.Contains(t, sink.String(), "to both")
}
