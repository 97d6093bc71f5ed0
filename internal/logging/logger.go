// Package logging builds the zerolog loggers used across the runtime. The
// CLI creates one root logger and every component receives a sub-logger
// tagged with its component name.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config configures the root logger.
type Config struct {
	Level   string // debug, info, warn, error
	File    string // optional log file, appended
	Console bool   // human readable output on stderr instead of JSON
	NoColor bool
}

// DefaultConfig returns console logging at info level.
func DefaultConfig() Config {
	return Config{Level: "info", Console: true}
}

// VerboseConfig returns console logging at debug level.
func VerboseConfig() Config {
	return Config{Level: "debug", Console: true}
}

// ParseLevel maps a level name to a zerolog level. Unknown names map to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates the root logger. The returned closer releases the log file, if
// any, and is never nil.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			NoColor:    cfg.NoColor,
			TimeFormat: time.TimeOnly,
		})
	} else {
		writers = append(writers, os.Stderr)
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	var out io.Writer = writers[0]
	if len(writers) > 1 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	return logger, closer, nil
}

// SetGlobal makes logger the package-level zerolog logger.
func SetGlobal(logger zerolog.Logger) {
	zlog.Logger = logger
	zerolog.DefaultContextLogger = &logger
}

// Component returns a sub-logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
