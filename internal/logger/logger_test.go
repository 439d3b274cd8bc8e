package logger

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	orig := os.Stdout
	defer func() { os.Stdout = orig }()

	r, w, err := os.Pipe()
	require.NoError(t, err, "failed to create stdout pipe")

	os.Stdout = w
	fn()

	err = w.Close()
	require.NoError(t, err, "failed to close stdout pipe")

	out, err := io.ReadAll(r)
	require.NoError(t, err, "failed to read stdout pipe")

	return string(out)
}

func TestLogger_parseLevelString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"debug level uppercase", "DEBUG", slog.LevelDebug},
		{"info level", "info", slog.LevelInfo},
		{"warn level", "warn", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"empty defaults to info", "", slog.LevelInfo},
		{"unknown defaults to info", "whatever", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, parseLevelString(tt.input))
		})
	}
}

func TestLogger_New(t *testing.T) {
	t.Run("dev environment", func(t *testing.T) {
		l, err := New(EnvDevelopment, LevelInfo)
		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("prod environment", func(t *testing.T) {
		l, err := New(EnvProduction, LevelInfo)
		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("unknown environment", func(t *testing.T) {
		_, err := New("staging", LevelInfo)
		require.Error(t, err, "unknown environment should not be accepted silently")
	})
}

func TestLogger_JSONOutput(t *testing.T) {
	out := captureStdout(t, func() {
		l := NewJSONLogger(LevelDebug)
		l.With("component", "test").Info("hello", "answer", 42)
	})

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &record), "JSON logger should produce valid json. Got: %s", out)
	require.Equal(t, "hello", record["msg"])
	require.Equal(t, "test", record["component"])
	require.EqualValues(t, 42, record["answer"])
	require.Contains(t, record, "source", "source info should be added")
}

func TestLogger_LevelFiltering(t *testing.T) {
	out := captureStdout(t, func() {
		l := NewLogger(LevelWarn)
		l.Debug("should be dropped")
		l.Info("should be dropped too")
		l.Warn("should be written")
	})

	require.NotContains(t, out, "should be dropped")
	require.Contains(t, out, "should be written")
}

func TestLogger_NoOp(t *testing.T) {
	out := captureStdout(t, func() {
		l := NewNoOpLogger()
		l.Error("nothing should be written")
	})

	require.Empty(t, out, "no-op logger must not write anything")
}
