package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects the logger into a buffer for one test.
func captureOutput(t *testing.T, level, format string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	InitWithWriter(&buf, level, format, false)
	t.Cleanup(func() {
		InitWithWriter(&buf, "INFO", "text", false)
	})
	return &buf
}

// ============================================================================
// Text Output
// ============================================================================

func TestTextOutput(t *testing.T) {
	t.Run("RendersMessageAndFields", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")
		Info("Packet served", "idx", 42, "bytes", 65536)

		out := buf.String()
		assert.Contains(t, out, "[INFO]")
		assert.Contains(t, out, "Packet served")
		assert.Contains(t, out, "idx=42")
		assert.Contains(t, out, "bytes=65536")
	})

	t.Run("RespectsLevel", func(t *testing.T) {
		buf := captureOutput(t, "WARN", "text")
		Info("quiet")
		Warn("loud")

		out := buf.String()
		assert.NotContains(t, out, "quiet")
		assert.Contains(t, out, "loud")
	})

	t.Run("PrintfVariants", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")
		Infof("served %d packets", 7)
		assert.Contains(t, buf.String(), "served 7 packets")
	})
}

// ============================================================================
// JSON Output
// ============================================================================

func TestJSONOutput(t *testing.T) {
	buf := captureOutput(t, "INFO", "json")
	Info("Queue drained", "engine", "writer", "queued", 0)

	line := strings.TrimSpace(buf.String())
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "Queue drained", record["msg"])
	assert.Equal(t, "writer", record["engine"])
}

// ============================================================================
// Level Handling
// ============================================================================

func TestLevelHandling(t *testing.T) {
	t.Run("LevelStrings", func(t *testing.T) {
		assert.Equal(t, "DEBUG", LevelDebug.String())
		assert.Equal(t, "ERROR", LevelError.String())
	})

	t.Run("IgnoresInvalidLevel", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")
		SetLevel("SHOUTING")
		Info("still here")
		assert.Contains(t, buf.String(), "still here")
	})

	t.Run("DebugSuppressedAtInfo", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")
		Debug("invisible")
		assert.Empty(t, buf.String())
	})
}

// ============================================================================
// Bound Fields
// ============================================================================

func TestWith(t *testing.T) {
	buf := captureOutput(t, "INFO", "text")
	log := With("run_id", "abc123")
	log.Info("Starting run")

	out := buf.String()
	assert.Contains(t, out, "run_id=abc123")
	assert.Contains(t, out, "Starting run")
}
