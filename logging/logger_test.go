package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TextOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(buf, "debug", false)
	require.NotNil(t, logger)

	logger.Debug("worker refreshed", "count", 3)

	output := buf.String()
	assert.Contains(t, output, "worker refreshed")
	assert.Contains(t, output, "count=3")
	assert.Contains(t, output, "level=DEBUG")
}

func TestNew_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(buf, "info", true)

	logger.Info("issue assigned", "issue", "GBG-001")

	assert.Contains(t, buf.String(), `"issue":"GBG-001"`)
}

func TestSlogLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(buf, "warn", false)

	logger.Debug("debug message")
	logger.Info("info message")
	assert.Empty(t, buf.String())

	logger.Warn("warn message")
	logger.Error("error message")
	assert.Contains(t, buf.String(), "warn message")
	assert.Contains(t, buf.String(), "error message")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	logger.Debug("x")
	logger.Info("x")
	logger.Warn("x")
	logger.Error("x")
}
