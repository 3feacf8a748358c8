// Package colors provides console output for the threadsauto commands.
package colors

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Color constants
const (
	Red    = "\033[0;31m"
	Green  = "\033[0;32m"
	Yellow = "\033[1;33m"
	Blue   = "\033[0;34m"
	Cyan   = "\033[0;36m"
	Reset  = "\033[0m"
)

const checkmark = "✓"

// Logger mirrors console output into the structured log.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	mu           sync.RWMutex
	debugEnabled = os.Getenv("THREADSAUTO_DEBUG") == "true" || os.Getenv("THREADSAUTO_DEBUG") == "1"
	logger       Logger
	stdout       io.Writer = os.Stdout
	stderr       io.Writer = os.Stderr
)

// SetDebug enables or disables debug output.
func SetDebug(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	debugEnabled = enabled
}

// SetLogger sets the structured logger that mirrors console output.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// SetOutput redirects console output. Nil writers restore the defaults.
func SetOutput(out, errOut io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	stdout = out
	stderr = errOut
}

// Error outputs an error message to stderr.
func Error(msgs ...string) {
	msg := strings.Join(msgs, " ")
	mirror(func(l Logger) { l.Error(msg) })
	emit(true, "%sError:%s %s\n", Red, Reset, msg)
}

// Warning outputs a warning message to stderr.
func Warning(msgs ...string) {
	msg := strings.Join(msgs, " ")
	mirror(func(l Logger) { l.Warn(msg) })
	emit(true, "%sWarning:%s %s\n", Yellow, Reset, msg)
}

// Info outputs an informational message to stdout.
func Info(msgs ...string) {
	msg := strings.Join(msgs, " ")
	mirror(func(l Logger) { l.Info(msg) })
	emit(false, "%s%s%s\n", Blue, msg, Reset)
}

// Success outputs a success message to stdout.
func Success(msgs ...string) {
	msg := strings.Join(msgs, " ")
	mirror(func(l Logger) { l.Info(msg, "type", "success") })
	emit(false, "%s%s%s %s\n", Green, checkmark, Reset, msg)
}

// Debug outputs a debug message to stderr if debug is enabled.
func Debug(msgs ...string) {
	mu.RLock()
	enabled := debugEnabled
	mu.RUnlock()
	if !enabled {
		return
	}
	msg := strings.Join(msgs, " ")
	mirror(func(l Logger) { l.Debug(msg) })
	emit(true, "%sDebug:%s %s\n", Cyan, Reset, msg)
}

func mirror(fn func(Logger)) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		fn(l)
	}
}

func emit(toStderr bool, format string, args ...any) {
	mu.RLock()
	w := stdout
	if toStderr {
		w = stderr
	}
	mu.RUnlock()
	if _, err := fmt.Fprintf(w, format, args...); err != nil && w != os.Stderr {
		// Last resort: the configured writer is broken.
		fmt.Fprintf(os.Stderr, "output failed: %v\n", err)
	}
}
