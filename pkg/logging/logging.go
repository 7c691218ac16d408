// Package logging builds the zerolog loggers shared by the producer and
// consumer.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a root logger at the given level ("debug", "info", ...).
// Unknown levels fall back to info. When pretty is set the output is a
// human-readable console stream instead of JSON lines.
func New(level string, pretty bool) zerolog.Logger {
	return NewWriter(os.Stderr, level, pretty)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Session returns a child logger tagged with a session id.
func Session(l zerolog.Logger, id string) zerolog.Logger {
	return l.With().Str("session", id).Logger()
}
