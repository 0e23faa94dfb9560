package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/platform/config"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("json output carries the service attribute", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, config.LogConfig{Format: "json", Level: "info"})
		log.Info("delivery created", "aggregate_id", "d-1")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "courier", entry["service"])
		assert.Equal(t, "d-1", entry["aggregate_id"])
	})

	t.Run("level filters debug", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, config.LogConfig{Format: "text", Level: "warn"})
		log.Debug("hidden")
		log.Info("hidden")
		assert.Empty(t, buf.String())
		log.Warn("shown")
		assert.Contains(t, buf.String(), "msg=shown")
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
