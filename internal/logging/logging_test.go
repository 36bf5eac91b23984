package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"ERROR", slog.LevelError},
		{"warning", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"info", slog.LevelInfo},
		{"Debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestNewTextFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, Config{Level: "WARNING"})

	log.Info("dropped")
	log.Warn("kept", "client_id", "c1")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "client_id=c1")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Config{Level: "DEBUG", Format: "json"}).Debug("sweep", "flipped", 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "sweep", line["msg"])
	assert.Equal(t, "DEBUG", line["level"])
	assert.EqualValues(t, 2, line["flipped"])
}

func TestConfigDebug(t *testing.T) {
	assert.True(t, Config{Level: "debug"}.Debug())
	assert.False(t, Config{Level: "INFO"}.Debug())
}
