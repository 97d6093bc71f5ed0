package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cortex.log")

	logger, closer, err := New(Config{Level: "warn", File: path})
	require.NoError(t, err)

	logger.Info().Msg("dropped")
	componentLogger := Component(logger, "runtime")
	componentLogger.Warn().Msg("kept")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), `"component":"runtime"`)
	assert.Contains(t, string(data), "kept")
}

func TestNewWithoutFile(t *testing.T) {
	logger, closer, err := New(DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, closer)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	assert.NoError(t, closer.Close())

	logger, _, err = New(VerboseConfig())
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}
