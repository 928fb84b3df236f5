// Package logger provides the structured logging facade used throughout
// fleetnet. It wraps logrus the way the teacher's shared/logger wraps its
// own backend: free functions plus a field map, so call sites never import
// logrus directly.
package logger

import (
	"github.com/sirupsen/logrus"
)

// Ctx is a set of structured fields attached to a log entry.
type Ctx map[string]any

// Log is the logging surface components accept, so tests can inject a
// recording implementation instead of the process-wide logger.
type Log interface {
	Debug(msg string, ctx ...Ctx)
	Info(msg string, ctx ...Ctx)
	Warn(msg string, ctx ...Ctx)
	Error(msg string, ctx ...Ctx)
}

var std = logrus.StandardLogger()

// SetLevel adjusts the process-wide log level (e.g. from a debug flag).
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

func fields(ctx []Ctx) logrus.Fields {
	if len(ctx) == 0 {
		return nil
	}

	f := make(logrus.Fields, len(ctx[0]))
	for _, c := range ctx {
		for k, v := range c {
			f[k] = v
		}
	}

	return f
}

// Debug logs a debug-level message with optional structured fields.
func Debug(msg string, ctx ...Ctx) {
	std.WithFields(fields(ctx)).Debug(msg)
}

// Info logs an info-level message with optional structured fields.
func Info(msg string, ctx ...Ctx) {
	std.WithFields(fields(ctx)).Info(msg)
}

// Warn logs a warning-level message with optional structured fields.
func Warn(msg string, ctx ...Ctx) {
	std.WithFields(fields(ctx)).Warn(msg)
}

// Error logs an error-level message with optional structured fields.
func Error(msg string, ctx ...Ctx) {
	std.WithFields(fields(ctx)).Error(msg)
}

// process-wide logger satisfying Log, handed out by Default().
type stdLog struct{}

func (stdLog) Debug(msg string, ctx ...Ctx) { Debug(msg, ctx...) }
func (stdLog) Info(msg string, ctx ...Ctx)  { Info(msg, ctx...) }
func (stdLog) Warn(msg string, ctx ...Ctx)  { Warn(msg, ctx...) }
func (stdLog) Error(msg string, ctx ...Ctx) { Error(msg, ctx...) }

// Default returns the process-wide Log implementation.
func Default() Log { return stdLog{} }
