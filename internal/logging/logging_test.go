package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNewWithWriter(t *testing.T) {
	t.Run("debug messages are dropped by default", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, false)

		log.Info("Server started", "addr", ":8080")
		log.V(DEBUG).Info("Sending archive chunk", "bytes", 1024)

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "Server started", lines[0]["msg"])
		assert.Equal(t, ":8080", lines[0]["addr"])
		assert.Equal(t, "info", lines[0]["level"])
		assert.Contains(t, lines[0], "ts")
	})

	t.Run("debug enables V(DEBUG)", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, true)

		log.V(DEBUG).Info("Sending archive chunk", "bytes", 1024)

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "Sending archive chunk", lines[0]["msg"])
		assert.EqualValues(t, 1024, lines[0]["bytes"])
	})

	t.Run("errors carry the error text", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, false)

		log.Error(errors.New("boom"), "Failed to terminate archiver")

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "error", lines[0]["level"])
		assert.Equal(t, "boom", lines[0]["error"])
	})
}

func TestLevel(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, Level(false))
	assert.Equal(t, zapcore.DebugLevel, Level(true))
}
