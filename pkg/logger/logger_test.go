package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Run("Should map known levels case-insensitively", func(t *testing.T) {
		assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
		assert.Equal(t, WarnLevel, ParseLevel(" warn "))
		assert.Equal(t, ErrorLevel, ParseLevel("error"))
	})
	t.Run("Should default to info", func(t *testing.T) {
		assert.Equal(t, InfoLevel, ParseLevel(""))
		assert.Equal(t, InfoLevel, ParseLevel("verbose"))
	})
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: WarnLevel, Output: &buf})
	l.Info("hidden")
	l.Warn("shown", "token", "한글")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "한글")
}

func TestNewJSONWith(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: DebugLevel, Output: &buf, JSON: true}).With("variant", "kr")
	l.Debug("read token", "token", "한글")

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "kr", entry["variant"])
	assert.Equal(t, "read token", entry["msg"])
}

func TestOrDiscard(t *testing.T) {
	require.NotNil(t, OrDiscard(nil))
	OrDiscard(nil).Error("dropped")
}
