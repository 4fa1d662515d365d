package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("tracker", &buf)

	logger.Info("bucket written", "bucket", "user:daily:20210209:Azure:audio:ABC", "characters", 20)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "tracker", entry["component"])
	assert.Equal(t, "bucket written", entry["message"])
	assert.Equal(t, "user:daily:20210209:Azure:audio:ABC", entry["bucket"])
	assert.Equal(t, float64(20), entry["characters"])
}

func TestLogger_ErrorValues(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("reconciler", &buf)

	logger.Error("report failed", "error", errors.New("connection refused"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "connection refused", entry["error"])
}

func TestLogger_SetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("test", &buf)
	logger.SetLogLevel(Warning)

	logger.Debug("hidden")
	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   Debug,
		"INFO":    Info,
		"warn":    Warning,
		"warning": Warning,
		"error":   Error,
		"fatal":   Critical,
		"":        Info,
		"verbose": Info,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), "input %q", in)
	}
}

func TestNopLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NopLogger().Error("dropped", "key", "value")
	})
}
