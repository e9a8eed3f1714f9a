// Package logging builds the zerolog logger used by the command line.
//
// Diagnostics go to stderr so stdout stays reserved for metadata, generated
// flags and reports.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseLevel converts a level name to a zerolog level. Empty selects warn.
func ParseLevel(value string) (zerolog.Level, error) {
	norm := strings.ToLower(strings.TrimSpace(value))
	if norm == "" {
		return zerolog.WarnLevel, nil
	}
	level, err := zerolog.ParseLevel(norm)
	if err != nil || norm == "fatal" || norm == "panic" {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", value)
	}
	return level, nil
}

// New returns a console logger writing to w at the given level.
func New(w io.Writer, level string) (*zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: true}
	logger := zerolog.New(out).Level(lvl).With().
		Timestamp().
		Str("component", "gitstamp").
		Logger()
	return &logger, nil
}

// Nop returns a logger that discards everything.
func Nop() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}
