package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLeveledLogger(t *testing.T) {
	t.Run("should honour the requested level", func(t *testing.T) {
		// Act
		logger, level, err := NewLeveledLogger("warn", false)

		// Assert
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.False(t, logger.Core().Enabled(zap.InfoLevel))
		assert.True(t, logger.Core().Enabled(zap.WarnLevel))

		level.SetLevel(zap.DebugLevel)
		assert.True(t, logger.Core().Enabled(zap.DebugLevel))
	})

	t.Run("should build a development logger", func(t *testing.T) {
		// Act
		logger, _, err := NewLeveledLogger("debug", true)

		// Assert
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zap.DebugLevel))
	})

	t.Run("should reject unknown levels", func(t *testing.T) {
		logger, _, err := NewLeveledLogger("loud", true)

		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestParseLevel(t *testing.T) {
	t.Run("should parse known level names", func(t *testing.T) {
		for name, want := range map[string]zap.AtomicLevel{
			"debug": zap.NewAtomicLevelAt(zap.DebugLevel),
			"info":  zap.NewAtomicLevelAt(zap.InfoLevel),
			"error": zap.NewAtomicLevelAt(zap.ErrorLevel),
		} {
			got, err := ParseLevel(name)
			require.NoError(t, err)
			assert.Equal(t, want.Level(), got.Level(), name)
		}
	})
}
