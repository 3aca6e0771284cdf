package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

// Logger writes human-readable operational output. Secret material must be
// wrapped in Secret before being passed as a format argument.
type Logger struct {
	out     io.Writer
	debug   bool
	noColor bool
}

// New creates a logger writing to stderr.
func New(debug, noColor bool) *Logger {
	return &Logger{out: os.Stderr, debug: debug, noColor: noColor}
}

// NewWithWriter creates a logger with a custom output, used in tests.
func NewWithWriter(w io.Writer, debug, noColor bool) *Logger {
	return &Logger{out: w, debug: debug, noColor: noColor}
}

var marks = map[level]struct {
	plain   string
	colored string
}{
	levelDebug: {"[DEBUG]", "\033[36m[DEBUG]\033[0m"},
	levelInfo:  {"✓", "\033[32m✓\033[0m"},
	levelWarn:  {"⚠", "\033[33m⚠\033[0m"},
	levelError: {"✗", "\033[31m✗\033[0m"},
}

func (l *Logger) logf(lv level, format string, args ...interface{}) {
	mark := marks[lv].colored
	if l.noColor {
		mark = marks[lv].plain
	}
	fmt.Fprintf(l.out, "%s %s\n", mark, fmt.Sprintf(format, args...))
}

// Debug logs a message only when debug mode is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.logf(levelDebug, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(levelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(levelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(levelError, format, args...)
}

// Secret is a value that must never appear in log output. Both %s and %#v
// formatting render it redacted.
type Secret string

func (s Secret) String() string   { return "[REDACTED]" }
func (s Secret) GoString() string { return "[REDACTED]" }

// Redact replaces occurrences of the given secret values in s. Values of
// three characters or fewer are left alone to avoid mangling ordinary text.
func Redact(s string, secrets []string) string {
	for _, secret := range secrets {
		if len(secret) > 3 {
			s = strings.ReplaceAll(s, secret, "[REDACTED]")
		}
	}
	return s
}
