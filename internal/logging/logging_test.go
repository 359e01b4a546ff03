package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "radiotape.log")

	logger := New("debug", path)
	logger.Info().Msg("segment sealed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "segment sealed")
}

func TestNewLevelHandling(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, New("warn", "").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New("", "").GetLevel(), "unknown level falls back to info")
	assert.Equal(t, zerolog.InfoLevel, New("shouting", "").GetLevel())
}
