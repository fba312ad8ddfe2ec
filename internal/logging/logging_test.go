package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "warn", false, false)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("entry point failed", "entry", "m")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "entry point failed")
	assert.Contains(t, out, "entry=m")
}

func TestNewJSONVerbose(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "error", true, true)
	require.NoError(t, err)

	log.Debug("graph built", "nodes", 3)
	line := strings.TrimSpace(buf.String())
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "graph built", rec["msg"])
	assert.Equal(t, float64(3), rec["nodes"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "chatty", false, false)
	assert.Error(t, err)
}
