package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Level is the textual logging level accepted in configuration files.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var zapLevels = map[Level]zapcore.Level{
	"":         zapcore.InfoLevel,
	LevelDebug: zapcore.DebugLevel,
	LevelInfo:  zapcore.InfoLevel,
	LevelWarn:  zapcore.WarnLevel,
	LevelError: zapcore.ErrorLevel,
}

// ParseLevel parses a case-insensitive level name. The empty string means INFO.
func ParseLevel(level string) (Level, error) {
	l := Level(strings.ToUpper(level))
	if l == "" {
		return LevelInfo, nil
	}
	if err := l.Validate(); err != nil {
		return "", err
	}
	return l, nil
}

// Validate reports whether l names a known level.
func (l Level) Validate() error {
	if _, ok := zapLevels[Level(strings.ToUpper(string(l)))]; !ok {
		return fmt.Errorf("unknown log level: %s", l)
	}
	return nil
}

// String implements fmt.Stringer.
func (l Level) String() string { return strings.ToUpper(string(l)) }

func (l Level) toZapCoreLevel() (zapcore.Level, error) {
	zl, ok := zapLevels[Level(strings.ToUpper(string(l)))]
	if !ok {
		return zapcore.InfoLevel, fmt.Errorf("can't convert log level to zapcore.Level: %s", l)
	}
	return zl, nil
}

func (c *Config) toZapCoreLevel() (zapcore.Level, error) {
	if c.Debug {
		return zapcore.DebugLevel, nil
	}
	return c.Level.toZapCoreLevel()
}
