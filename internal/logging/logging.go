// Package logging builds SpaceNote's process-wide structured logger.
//
// It generalizes cuemby-warren's pkg/log to SpaceNote's per-space, per-task
// fields: console output with a pretty writer when attached to a terminal or
// when Config.Debug is set, JSON otherwise.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Config mirrors the relevant subset of internal/config.Config.
type Config struct {
	Level  string
	Debug  bool
	Output io.Writer
}

// New builds a root zerolog.Logger from cfg.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	useConsole := cfg.Debug
	if f, ok := output.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		useConsole = true
	}

	if useConsole {
		return zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

// WithSpace returns a child logger scoped to a space.
func WithSpace(l zerolog.Logger, spaceSlug string) zerolog.Logger {
	return l.With().Str("space", spaceSlug).Logger()
}

// WithTask returns a child logger scoped to a messenger task.
func WithTask(l zerolog.Logger, spaceSlug string, taskNumber int) zerolog.Logger {
	return l.With().Str("space", spaceSlug).Int("task_number", taskNumber).Logger()
}
