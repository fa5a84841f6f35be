// Package logger provides the leveled logger shared by eventload components.
package logger

import (
	"io"
	"log"
	"os"
)

// Logger is the logging interface passed to components.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	// WithPrefix returns a Logger writing to the same destination with the
	// given prefix prepended to every message.
	WithPrefix(prefix string) Logger
}

const (
	LevelError = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var levelPrefixes = [...]string{"ERROR: ", "WARN:  ", "INFO:  ", "DEBUG: "}

// NopLogger discards everything.
var NopLogger Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (n nopLogger) WithPrefix(string) Logger    { return n }

type standardLogger struct {
	logger    *log.Logger
	w         io.Writer
	verbosity int
	prefix    string
}

// New returns a Logger writing UTC timestamps to w. Messages above
// verbosity are dropped.
func New(w io.Writer, verbosity int) Logger {
	return newStandardLogger(w, verbosity, "")
}

// NewStderr returns an info-level logger, or a debug-level one when verbose.
func NewStderr(verbose bool) Logger {
	if verbose {
		return New(os.Stderr, LevelDebug)
	}
	return New(os.Stderr, LevelInfo)
}

func newStandardLogger(w io.Writer, verbosity int, prefix string) *standardLogger {
	return &standardLogger{
		logger:    log.New(w, "", log.LstdFlags|log.Lmicroseconds|log.LUTC|log.Lmsgprefix),
		w:         w,
		verbosity: verbosity,
		prefix:    prefix,
	}
}

func (s *standardLogger) printf(level int, format string, v ...interface{}) {
	if level > s.verbosity {
		return
	}
	s.logger.Printf(levelPrefixes[level]+s.prefix+format, v...)
}

func (s *standardLogger) Debugf(format string, v ...interface{}) { s.printf(LevelDebug, format, v...) }
func (s *standardLogger) Infof(format string, v ...interface{})  { s.printf(LevelInfo, format, v...) }
func (s *standardLogger) Warnf(format string, v ...interface{})  { s.printf(LevelWarn, format, v...) }
func (s *standardLogger) Errorf(format string, v ...interface{}) { s.printf(LevelError, format, v...) }

func (s *standardLogger) WithPrefix(prefix string) Logger {
	return newStandardLogger(s.w, s.verbosity, s.prefix+prefix)
}

// Logfer is anything with a Logf method, such as *testing.T.
type Logfer interface {
	Logf(format string, v ...interface{})
}

type logfLogger struct {
	wrapped Logfer
	prefix  string
}

// NewLogfLogger adapts a testing.T style Logf into a Logger.
func NewLogfLogger(l Logfer) Logger {
	return &logfLogger{wrapped: l}
}

func (l *logfLogger) Debugf(format string, v ...interface{}) { l.wrapped.Logf(l.prefix+format, v...) }
func (l *logfLogger) Infof(format string, v ...interface{})  { l.wrapped.Logf(l.prefix+format, v...) }
func (l *logfLogger) Warnf(format string, v ...interface{})  { l.wrapped.Logf(l.prefix+format, v...) }
func (l *logfLogger) Errorf(format string, v ...interface{}) { l.wrapped.Logf(l.prefix+format, v...) }

func (l *logfLogger) WithPrefix(prefix string) Logger {
	return &logfLogger{wrapped: l.wrapped, prefix: l.prefix + prefix}
}
