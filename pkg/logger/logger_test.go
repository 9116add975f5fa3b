package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo})

	log.With(SessionID("s-1")).Info("answer submitted", StudentID("st-9"), Err(errors.New("boom")))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "INFO", got["level"])
	assert.Equal(t, "answer submitted", got["message"])

	fields := got["fields"].(map[string]any)
	assert.Equal(t, "s-1", fields["session_id"])
	assert.Equal(t, "st-9", fields["student_id"])
	assert.Equal(t, "boom", fields["error"])
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn})

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Error("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLogger_WithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Options{Output: &buf, Level: LevelDebug})
	_ = parent.With(String("k", "v"))

	parent.Debug("plain")
	assert.NotContains(t, buf.String(), `"k"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}
