package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(99).String())
}

func TestLogger_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelInfo, Format: "text", Output: &buf})

	logger.Info(context.Background(), "compiled template", "template", "welcome", "scope", 3)

	out := buf.String()
	assert.Contains(t, out, "compiled template")
	assert.Contains(t, out, "template=welcome")
	assert.Contains(t, out, "scope=3")
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelInfo, Format: "json", Output: &buf})

	logger.Warn(context.Background(), errors.New("boom"), "compile failed", "template", "broken")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "compile failed", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "broken", entry["template"])
}

func TestLogger_LevelGate(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Format: "text", Output: &buf})

	logger.Debug(context.Background(), "invisible")
	logger.Info(context.Background(), "also invisible")
	assert.Empty(t, buf.String())

	logger.Warn(context.Background(), nil, "visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelInfo, Format: "text", Output: &buf})

	logger.WithComponent("cache-janitor").Info(context.Background(), "swept")

	assert.Contains(t, buf.String(), "component=cache-janitor")
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelInfo, Format: "text", Output: &buf})

	scoped := logger.With("template", "welcome")
	scoped.Info(context.Background(), "first")
	scoped.Info(context.Background(), "second")

	out := buf.String()
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte("template=welcome")))
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()

	// Must be silent and must not panic.
	logger.Debug(context.Background(), "x")
	logger.Info(context.Background(), "x")
	logger.Warn(context.Background(), errors.New("e"), "x")
	logger.Error(context.Background(), errors.New("e"), "x")
}

func TestNewLogger_NilConfig(t *testing.T) {
	assert.NotNil(t, NewLogger(nil))
}
