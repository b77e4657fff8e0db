package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Sink receives formatted log lines while TUI mode is on.
type Sink func(level, message string)

// Logger wraps logrus with an optional TUI sink.
type Logger struct {
	mu      sync.RWMutex
	base    *logrus.Logger
	sink    Sink
	tuiMode bool
}

var defaultLogger = newLogger()

func newLogger() *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
	})
	return &Logger{base: base}
}

// SetSink sets the destination for log lines in TUI mode.
func SetSink(sink Sink) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.sink = sink
}

// SetTUIMode enables or disables TUI mode.
// In TUI mode, logs go to the sink instead of stderr.
func SetTUIMode(enabled bool) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.tuiMode = enabled
}

// SetLevel parses and applies a level name ("debug", "info", "warn", "error").
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	defaultLogger.base.SetLevel(lvl)
	return nil
}

// SetOutput redirects non-TUI output, mainly for tests.
func SetOutput(w io.Writer) {
	defaultLogger.base.SetOutput(w)
}

// Base exposes the underlying logrus logger for libraries that want one.
func Base() *logrus.Logger {
	return defaultLogger.base
}

// DebugWriter returns a writer that logs every line written to it at debug
// level. It is meant for libraries that only accept an io.Writer.
func DebugWriter() io.Writer {
	return lineWriter{level: logrus.DebugLevel}
}

type lineWriter struct {
	level logrus.Level
}

func (w lineWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			defaultLogger.log(nil, w.level, "%s", line)
		}
	}
	return len(p), nil
}

// Entry is a logger bound to a set of fields.
type Entry struct {
	entry *logrus.Entry
}

// WithField returns an entry tagged with key=value.
func WithField(key string, value interface{}) *Entry {
	return &Entry{entry: defaultLogger.base.WithField(key, value)}
}

// WithField adds another field.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return &Entry{entry: e.entry.WithField(key, value)}
}

func (e *Entry) Debug(format string, args ...interface{}) {
	defaultLogger.log(e.entry, logrus.DebugLevel, format, args...)
}

func (e *Entry) Info(format string, args ...interface{}) {
	defaultLogger.log(e.entry, logrus.InfoLevel, format, args...)
}

func (e *Entry) Warn(format string, args ...interface{}) {
	defaultLogger.log(e.entry, logrus.WarnLevel, format, args...)
}

func (e *Entry) Error(format string, args ...interface{}) {
	defaultLogger.log(e.entry, logrus.ErrorLevel, format, args...)
}

// Debug logs a debug message.
func Debug(format string, args ...interface{}) {
	defaultLogger.log(nil, logrus.DebugLevel, format, args...)
}

// Info logs an informational message.
func Info(format string, args ...interface{}) {
	defaultLogger.log(nil, logrus.InfoLevel, format, args...)
}

// Warn logs a warning message.
func Warn(format string, args ...interface{}) {
	defaultLogger.log(nil, logrus.WarnLevel, format, args...)
}

// Error logs an error message.
func Error(format string, args ...interface{}) {
	defaultLogger.log(nil, logrus.ErrorLevel, format, args...)
}

func (l *Logger) log(entry *logrus.Entry, level logrus.Level, format string, args ...interface{}) {
	if !l.base.IsLevelEnabled(level) {
		return
	}
	message := fmt.Sprintf(format, args...)

	l.mu.RLock()
	tuiMode := l.tuiMode
	sink := l.sink
	l.mu.RUnlock()

	if tuiMode && sink != nil {
		sink(level.String(), message)
		return
	}

	if entry == nil {
		entry = logrus.NewEntry(l.base)
	}
	entry.Log(level, message)
}
