// internal/logging/logging.go
// Package logging wraps a process-wide zerolog logger behind the small API the rest of
// kolosalctl uses: Init/Close around the command lifecycle, LogEvent for free-form
// messages and LogRequest for wire payloads.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu      sync.Mutex
	logFile *os.File
	logger  = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(zerolog.InfoLevel).With().Timestamp().Logger()
)

// Init configures the process logger. Console output goes to stderr; when logPath is
// set, JSON lines are also appended to that file.
func Init(logPath, level string) error {
	return InitWithWriter(os.Stderr, logPath, level)
}

// InitWithWriter is Init with an explicit console destination.
func InitWithWriter(console io.Writer, logPath, level string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var writers []io.Writer
	if console != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: time.Kitchen})
	}

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, logFile)
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = zerolog.MultiLevelWriter(writers...)
	}
	logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return nil
}

// Close flushes and releases the log file, returning output to stderr only.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(logger.GetLevel()).With().Timestamp().Logger()
	err := logFile.Close()
	logFile = nil
	return err
}

// Logger returns the current process logger.
func Logger() *zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	l := logger
	return &l
}

// SetLogger replaces the process logger. Tests use it to capture output.
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// LogEvent writes a formatted info message.
func LogEvent(format string, args ...any) {
	Logger().Info().Msg(fmt.Sprintf(format, args...))
}

// LogRequest records a request or response payload at debug level.
func LogRequest(direction, host, engine, op string, payload any) {
	l := Logger()
	if l.GetLevel() > zerolog.DebugLevel {
		return
	}
	l.Debug().Msg(buildRequestMessage(direction, host, engine, op, payload))
}

func buildRequestMessage(direction, host, engine, op string, payload any) string {
	dir := strings.TrimSpace(direction)
	if dir != "" {
		dir = strings.ToUpper(dir)
	}
	hostValue := strings.TrimSpace(host)
	if hostValue == "" {
		hostValue = "unknown"
	}
	engineValue := strings.TrimSpace(engine)
	if engineValue == "" {
		engineValue = "-"
	}
	parts := []string{fmt.Sprintf("[%s]", dir)}
	parts = append(parts, fmt.Sprintf("host=%s", hostValue))
	parts = append(parts, fmt.Sprintf("engine=%s", engineValue))
	if op = strings.TrimSpace(op); op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", op))
	}
	parts = append(parts, fmt.Sprintf("payload=%s", formatPayload(payload)))
	return strings.Join(parts, " ")
}

func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		if strings.TrimSpace(v) == "" {
			return `""`
		}
		return v
	case []byte:
		if len(v) == 0 {
			return "[]"
		}
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
