package batdev

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "batdev.log")
	logger, closer, err := NewLogger(LogConfig{File: path, Level: "info", MaxSizeMB: 1}, nil)
	require.NoError(t, err)

	logger.Info().Str("port", "/dev/ttyUSB0").Msg("serial link open")
	logger.Debug().Msg("filtered")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"port":"/dev/ttyUSB0"`)
	assert.NotContains(t, string(data), "filtered")
}

func TestNewLoggerConsoleDefaultsToWarn(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewLogger(LogConfig{}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info().Msg("quiet")
	logger.Warn().Msg("loud")
	assert.False(t, strings.Contains(buf.String(), "quiet"))
	assert.Contains(t, buf.String(), "loud")
}

func TestNewLoggerBadLevel(t *testing.T) {
	_, _, err := NewLogger(LogConfig{Level: "chatty"}, nil)
	assert.Error(t, err)
}
