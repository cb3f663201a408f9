// Package verbosity implements evs's leveled stderr logging: a thin shim
// over the standard library's log package gated by the CLI's repeatable
// -v flag.
package verbosity

import (
	"io"
	"log"
	"os"
)

// Level is a logging verbosity tier. Silent is the default; each -v on
// the command line raises the level by one step.
type Level int

const (
	Silent Level = iota
	Log
	Trace
	All
)

// FromFlagCount maps the number of times -v was given to a Level.
func FromFlagCount(count int) Level {
	switch {
	case count <= 0:
		return Silent
	case count == 1:
		return Log
	case count == 2:
		return Trace
	default:
		return All
	}
}

// Logger emits messages at or below its configured Level to an
// underlying *log.Logger; messages above it are dropped.
type Logger struct {
	level Level
	std   *log.Logger
}

// New returns a Logger writing to os.Stderr with no timestamp prefix,
// so CLI stderr output stays predictable for tests and scripts.
func New(level Level) *Logger {
	return NewTo(level, os.Stderr)
}

// NewTo returns a Logger writing to w, for tests that want to capture
// output.
func NewTo(level Level, w io.Writer) *Logger {
	return &Logger{level: level, std: log.New(w, "", 0)}
}

// Logf emits a formatted message if level is enabled.
func (l *Logger) Logf(level Level, format string, args ...any) {
	if l == nil || level > l.level {
		return
	}
	l.std.Printf(format, args...)
}

// Enabled reports whether level would currently produce output.
func (l *Logger) Enabled(level Level) bool {
	return l != nil && level <= l.level
}
