// Package logging wraps github.com/sirupsen/logrus with the small set of
// conventions the rest of this module relies on: a single process-wide
// logger, structured fields instead of format-string interpolation for
// anything with an identifier attached, and a debug flag threaded in from
// internal/config rather than a global.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a configured logger writing to stderr. debug raises the
// level to Debug; otherwise the logger stays at Info.
func New(debug bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// Noop returns a logger that discards all output, for tests that need a
// *logrus.Logger but don't want test output polluted.
func Noop() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(noopWriter{})
	return l
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
