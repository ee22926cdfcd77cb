package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// EnvLogLevel names the environment variable read when the logger is used
// before InitForCLI or InitForCapture was called.
const EnvLogLevel = "SCRIBBLE_LOG_LEVEL"

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo // Default to INFO for unknown
	}
}

// ParseLevel converts a level name (debug, info, warn, error) to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// LogEntry is the structured log entry delivered in capture mode.
type LogEntry struct {
	Timestamp  time.Time
	Level      LogLevel
	Subsystem  string
	Message    string
	Err        error
	Attributes []slog.Attr
}

var (
	mu             sync.RWMutex
	defaultLogger  *slog.Logger
	captureChannel chan LogEntry
	captureLevel   LogLevel
	isCaptureMode  bool
)

const captureChannelBufferSize = 2048

// initCommon initializes the logger for either CLI or capture mode.
func initCommon(mode string, level LogLevel, output io.Writer, channelBufferSize int) <-chan LogEntry {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{
		Level: level.SlogLevel(),
	}

	if mode == "capture" {
		isCaptureMode = true
		captureLevel = level
		if channelBufferSize <= 0 {
			channelBufferSize = captureChannelBufferSize
		}
		captureChannel = make(chan LogEntry, channelBufferSize)
		// Entries that do not fit into the channel still reach stderr.
		defaultLogger = slog.New(slog.NewTextHandler(os.Stderr, opts))
		return captureChannel
	}

	isCaptureMode = false
	captureChannel = nil
	defaultLogger = slog.New(slog.NewTextHandler(output, opts))
	return nil
}

// InitForCLI initializes the logging system for CLI mode.
// Logs are written as text to the given output.
func InitForCLI(filterLevel LogLevel, output io.Writer) {
	initCommon("cli", filterLevel, output, 0)
}

// InitForCapture initializes the logging system for capture mode. Entries at
// or above filterLevel are delivered on the returned channel instead of
// being written out. Tests use this to assert on what a fixture logged.
func InitForCapture(filterLevel LogLevel, bufferSize int) <-chan LogEntry {
	return initCommon("capture", filterLevel, os.Stderr, bufferSize)
}

// levelFromEnv reads EnvLogLevel, falling back to WARN so that fixtures stay
// quiet inside `go test` unless asked otherwise.
func levelFromEnv() LogLevel {
	if v := os.Getenv(EnvLogLevel); v != "" {
		if level, err := ParseLevel(v); err == nil {
			return level
		}
	}
	return LevelWarn
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	mu.RLock()
	logger := defaultLogger
	capture := isCaptureMode
	ch := captureChannel
	minLevel := captureLevel
	mu.RUnlock()

	if capture {
		if level < minLevel {
			return
		}
		entry := LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Subsystem: subsystem,
			Message:   msg,
			Err:       err,
		}
		select {
		case ch <- entry:
			return
		default:
			// Channel full, fall through to the text logger.
		}
	}

	if logger == nil {
		InitForCLI(levelFromEnv(), os.Stderr)
		mu.RLock()
		logger = defaultLogger
		mu.RUnlock()
	}

	var slogAttrs []slog.Attr
	slogAttrs = append(slogAttrs, slog.String("subsystem", subsystem))
	if err != nil {
		slogAttrs = append(slogAttrs, slog.String("error", err.Error()))
	}

	logger.LogAttrs(context.Background(), level.SlogLevel(), msg, slogAttrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}

// Reset drops the current logger configuration. The next log call
// initializes CLI mode from the environment again.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = nil
	captureChannel = nil
	isCaptureMode = false
}
