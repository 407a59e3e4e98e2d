package config

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates the root logger for a process. component is attached to
// every line so api and worker output can be told apart.
func NewLogger(cfg LoggerConfig, component string) zerolog.Logger {
	return newLogger(cfg, component, os.Stdout)
}

func newLogger(cfg LoggerConfig, component string, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).With().
		Timestamp().
		Str("service", "keyvault").
		Str("component", component).
		Logger()
}
