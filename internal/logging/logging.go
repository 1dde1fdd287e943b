// Package logging provides the single process-wide logger. In this tree
// only cmd/climp logs through it; the engine, loader thread, and device
// host do not log.
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

var base = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05",
})

// Logger is the structured logger type used throughout the package;
// re-exported so callers don't import charmbracelet/log directly.
type Logger = *log.Logger

// New returns a logger scoped to a component name, e.g. "engine" or
// "loader", attached as a persistent field to every line it writes.
func New(component string) Logger {
	return base.With("component", component)
}

// SetLevel controls verbosity process-wide (debug builds vs. release).
func SetLevel(level string) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return
	}
	base.SetLevel(parsed)
}
