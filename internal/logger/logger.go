package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLeveledLogger builds a production (JSON) or development (console) logger whose level
// can be changed after construction. Logs go to stderr so stdout stays reserved for
// command output.
func NewLeveledLogger(level string, development bool) (*zap.Logger, zap.AtomicLevel, error) {
	atomicLevel, err := ParseLevel(level)
	if err != nil {
		return nil, atomicLevel, err
	}

	config := zap.NewProductionConfig()
	if development {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = atomicLevel
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		return nil, atomicLevel, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, atomicLevel, nil
}

// ParseLevel converts a level name such as "debug" or "warn" into an AtomicLevel
func ParseLevel(level string) (zap.AtomicLevel, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zap.NewAtomicLevel(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zap.NewAtomicLevelAt(l), nil
}
