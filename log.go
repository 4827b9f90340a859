package boss

import (
	"io"

	"github.com/charmbracelet/log"
)

// Logger routes informational messages to one stream and everything else
// (debug, warnings, errors) to another, so operators can tell "degraded but
// continuing" from normal progress.
type Logger struct {
	out *log.Logger
	err *log.Logger
}

func NewLogger(stdout, stderr io.Writer, debug bool) *Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	return &Logger{
		out: log.NewWithOptions(stdout, log.Options{Level: log.InfoLevel}),
		err: log.NewWithOptions(stderr, log.Options{Level: level}),
	}
}

// DiscardLogger returns a Logger that drops every message.
func DiscardLogger() *Logger {
	return NewLogger(io.Discard, io.Discard, false)
}

// With returns a Logger that adds keyvals to every message.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{
		out: l.out.With(keyvals...),
		err: l.err.With(keyvals...),
	}
}

// OnStderr returns a Logger that writes informational messages to the
// stderr stream too, leaving stdout to command output.
func (l *Logger) OnStderr() *Logger {
	return &Logger{out: l.err, err: l.err}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.err.Debugf(format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.out.Infof(format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.err.Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.err.Errorf(format, args...)
}
