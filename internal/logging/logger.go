// Package logging provides a minimal structured logger wrapping the
// standard library's log.Logger with key/value fields, in the style of the
// teacher's gatewayLoggerPrefix + logger.Printf(...) convention
// (cmd/gateway/main.go). There is no global logger instance: callers
// construct one in main and thread it through the Supervisor down to every
// component, matching the teacher's own practice of never reaching for a
// package-level logger.
package logging

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// Logger is a thin structured wrapper over *log.Logger.
type Logger struct {
	std    *log.Logger
	fields []string
}

// New constructs a Logger writing to w with the given component prefix.
func New(w io.Writer, component string) *Logger {
	return &Logger{std: log.New(w, component+" ", log.LstdFlags|log.Lmicroseconds)}
}

// With returns a derived Logger that always includes the given key/value
// field in subsequent log lines, without mutating the receiver.
func (l *Logger) With(key string, value any) *Logger {
	next := &Logger{std: l.std, fields: append(append([]string{}, l.fields...), fmt.Sprintf("%s=%v", key, value))}
	return next
}

// Printf logs a formatted message followed by any bound fields.
func (l *Logger) Printf(format string, args ...any) {
	l.std.Printf("%s%s", fmt.Sprintf(format, args...), l.suffix())
}

// Errorf logs a formatted error-level message. spreadwatch has no distinct
// error channel; severity lives in the message text, matching the
// teacher's own logger.Printf-only usage.
func (l *Logger) Errorf(format string, args ...any) {
	l.Printf("error: "+format, args...)
}

func (l *Logger) suffix() string {
	if len(l.fields) == 0 {
		return ""
	}
	return " [" + strings.Join(l.fields, " ") + "]"
}
