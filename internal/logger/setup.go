// Package logger configures the global zerolog logger and keeps a ring of
// recent lines for the admin endpoint.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options control Setup.
type Options struct {
	Level   string
	Env     string
	Buffer  int
	Console io.Writer
}

// Setup replaces log.Logger and returns the ring capturing its output.
// Outside production the console output is human readable.
func Setup(opts Options) *Ring {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := opts.Console
	if out == nil {
		out = os.Stderr
	}
	if opts.Env != "production" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ring := NewRing(opts.Buffer)
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(out, ring)).With().Timestamp().Logger()
	if err != nil && opts.Level != "" {
		log.Warn().Str("level", opts.Level).Msg("unknown log level, using info")
	}
	return ring
}

// Component returns a child of the global logger tagged with name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
