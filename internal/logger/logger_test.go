package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"zentrust-donations/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(config.Log{Level: "debug", Format: "json"}, &buf)
	l.Debug("hello", "donation_id", "don-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "don-1", entry["donation_id"])
}

func TestNew_TextRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(config.Log{Level: "warn", Format: "text"}, &buf)
	l.Info("dropped")
	assert.Empty(t, buf.String())

	l.Warn("kept")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelError, parseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}
