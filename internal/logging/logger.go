// Package logging provides structured logging for threadsauto.
//
// Components accept a Logger so tests can inject Nop or a buffer-backed
// logger. The process-wide logger writes JSON lines to a rotated file
// under the state directory when logging is enabled.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	clog "github.com/charmbracelet/log"
	"github.com/dthanhvu03/threadsauto-sub000/internal/colors"
)

// Logger is the structured logging interface.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	// With returns a new logger with additional key-value pairs.
	With(args ...any) Logger
	// Shutdown flushes any buffered logs and releases resources.
	Shutdown() error
}

type loggerImpl struct {
	mu       sync.RWMutex
	clogger  *clog.Logger
	closer   io.Closer
	redactor *redactor
	fields   []any
	path     string
}

// Init opens a rotated log file for cfg. A disabled config yields Nop.
func Init(cfg Config) (Logger, error) {
	if !cfg.Enabled {
		return Nop(), nil
	}
	logDir, err := LogDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine log directory: %w", err)
	}
	if err := rotate(logDir, cfg.MaxFiles); err != nil {
		fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
	}
	fname := fmt.Sprintf("%s%s_PID%d_%s.log",
		filePrefix,
		time.Now().Format("20060102_150405"),
		cfg.PID,
		strings.ReplaceAll(cfg.Command, " ", "_"))
	path := filepath.Join(logDir, fname)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	l := newLogger(f, cfg.Level, clog.JSONFormatter).(*loggerImpl)
	l.clogger = l.clogger.With("pid", cfg.PID, "command", cfg.Command)
	l.closer = f
	l.path = path
	return l, nil
}

// New returns a logfmt logger writing to w. It is what the interactive
// commands and tests use.
func New(w io.Writer, level string) Logger {
	return newLogger(w, level, clog.LogfmtFormatter)
}

// NewJSON returns a JSON logger writing to w.
func NewJSON(w io.Writer, level string) Logger {
	return newLogger(w, level, clog.JSONFormatter)
}

func newLogger(w io.Writer, level string, formatter clog.Formatter) Logger {
	clogger := clog.NewWithOptions(w, clog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339Nano,
		Level:           parseLevel(level),
	})
	clogger.SetFormatter(formatter)
	return &loggerImpl{
		clogger:  clogger,
		redactor: newRedactor(),
	}
}

func parseLevel(level string) clog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return clog.DebugLevel
	case "warn", "warning":
		return clog.WarnLevel
	case "error":
		return clog.ErrorLevel
	default:
		return clog.InfoLevel
	}
}

func (l *loggerImpl) Debug(msg string, args ...any) { l.log(clog.DebugLevel, msg, args) }
func (l *loggerImpl) Info(msg string, args ...any)  { l.log(clog.InfoLevel, msg, args) }
func (l *loggerImpl) Warn(msg string, args ...any)  { l.log(clog.WarnLevel, msg, args) }
func (l *loggerImpl) Error(msg string, args ...any) { l.log(clog.ErrorLevel, msg, args) }

func (l *loggerImpl) log(level clog.Level, msg string, args []any) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	all := make([]any, 0, len(l.fields)+len(args))
	all = append(all, l.fields...)
	all = append(all, args...)
	l.clogger.Log(level, msg, l.redactor.redact(all)...)
}

func (l *loggerImpl) With(args ...any) Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fields := make([]any, 0, len(l.fields)+len(args))
	fields = append(fields, l.fields...)
	fields = append(fields, args...)
	return &loggerImpl{
		clogger:  l.clogger,
		closer:   l.closer,
		redactor: l.redactor,
		fields:   fields,
		path:     l.path,
	}
}

func (l *loggerImpl) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer != nil {
		err := l.closer.Close()
		l.closer = nil
		return err
	}
	return nil
}

func (l *loggerImpl) filePath() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.path
}

type noopLogger struct{}

// Nop returns a logger that discards everything.
func Nop() Logger { return noopLogger{} }

func (n noopLogger) Debug(msg string, args ...any) {}
func (n noopLogger) Info(msg string, args ...any)  {}
func (n noopLogger) Warn(msg string, args ...any)  {}
func (n noopLogger) Error(msg string, args ...any) {}
func (n noopLogger) With(args ...any) Logger       { return n }
func (n noopLogger) Shutdown() error               { return nil }

var (
	globalLogger     Logger
	globalLoggerOnce sync.Once
	globalLoggerMu   sync.RWMutex
)

// InitGlobal initializes the global logger from the loaded configuration.
// Only the first call has an effect.
func InitGlobal() error {
	var err error
	globalLoggerOnce.Do(func() {
		var l Logger
		l, err = Init(FromGlobalConfig())
		if err != nil {
			return
		}
		globalLoggerMu.Lock()
		globalLogger = l
		globalLoggerMu.Unlock()
		colors.SetLogger(l)
		if path := CurrentLogFile(); path != "" {
			colors.Debug("logging to file:", path)
		}
	})
	return err
}

// GetGlobal returns the global logger, or Nop if not initialized.
func GetGlobal() Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	if globalLogger == nil {
		return Nop()
	}
	return globalLogger
}

// ShutdownGlobal shuts down the global logger.
func ShutdownGlobal() error {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if globalLogger != nil {
		return globalLogger.Shutdown()
	}
	return nil
}

// CurrentLogFile returns the active log file path, or "" when logging to file is off.
func CurrentLogFile() string {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	if impl, ok := globalLogger.(*loggerImpl); ok {
		return impl.filePath()
	}
	return ""
}
