package log

import (
	"bytes"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureMyLogger(t *testing.T) {
	t.Cleanup(func() {
		log.SetOutput(io.Discard)
		currentLevel = LevelInfo
	})

	t.Run("levels", func(t *testing.T) {
		tests := []struct {
			levelStr string
			expected int
		}{
			{"TRACE", LevelTrace},
			{"debug", LevelDebug},
			{"INFO", LevelInfo},
			{"WARN", LevelWarn},
			{"ERROR", LevelError},
			{"UNKNOWN", LevelInfo},
			{"", LevelInfo},
		}

		for _, tt := range tests {
			require.NoError(t, ConfigureMyLogger(&MyLoggerOptions{Level: tt.levelStr}))
			assert.Equal(t, tt.expected, currentLevel, tt.levelStr)
		}
	})

	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.log")
		require.NoError(t, ConfigureMyLogger(&MyLoggerOptions{Path: path, Level: "DEBUG"}))
		Debug("written to %s", "file")
		assert.FileExists(t, path)
	})

	t.Run("bad path", func(t *testing.T) {
		err := ConfigureMyLogger(&MyLoggerOptions{Path: filepath.Join(t.TempDir(), "missing", "dir", "a.log")})
		assert.Error(t, err)
	})

	t.Run("logging", func(t *testing.T) {
		var buf bytes.Buffer
		log.SetOutput(&buf)
		currentLevel = LevelDebug

		Trace("trace msg")
		Debug("debug msg")
		Info("info msg")
		Warn("warn msg")
		Error("error msg")

		assert.NotContains(t, buf.String(), "trace msg")
		assert.Contains(t, buf.String(), "[DEBUG] debug msg")
		assert.Contains(t, buf.String(), "[INFO] info msg")
		assert.Contains(t, buf.String(), "[WARN] warn msg")
		assert.Contains(t, buf.String(), "[ERROR] error msg")

		buf.Reset()
		currentLevel = LevelError
		Debug("debug msg")
		Warn("warn msg")

		assert.NotContains(t, buf.String(), "debug msg")
		assert.NotContains(t, buf.String(), "warn msg")
		assert.True(t, Enabled(LevelError))
		assert.False(t, Enabled(LevelWarn))
	})
}
