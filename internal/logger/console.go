// Package logger provides the durable audit sink and the operator-facing
// console logger for reflector.
//
// The AuditLogger writes one redacted JSON object per line and is the record
// of every execution attempt. The ConsoleLogger prints human-readable
// progress for the CLI and daemon. Both are safe for concurrent use.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/reflector/internal/models"
	"github.com/mattn/go-isatty"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger writes timestamped progress lines to a writer.
// Output is prefixed with [HH:MM:SS] and filtered by level. Color is used
// when the writer is a terminal.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to writer.
// If writer is nil, messages are discarded. An empty or invalid logLevel
// defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal reports whether w is a TTY that should receive colored output.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel lowercases and validates a level, defaulting to "info".
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

// ValidLogLevel reports whether level names a console log level.
func ValidLogLevel(level string) bool {
	return normalizeLogLevel(level) == strings.ToLower(strings.TrimSpace(level))
}

// shouldLog reports whether a message at messageLevel passes the filter.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// LogTrace logs a trace-level message.
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	var formatted string
	if cl.colorOutput {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", timestamp(), colorLevel(level), message)
	} else {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message)
	}
	cl.write(formatted)
}

func colorLevel(level string) string {
	switch level {
	case "TRACE":
		return color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		return color.New(color.FgCyan).Sprint(level)
	case "INFO":
		return color.New(color.FgBlue).Sprint(level)
	case "WARN":
		return color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		return color.New(color.FgRed).Sprint(level)
	default:
		return level
	}
}

// LogRunStart logs the start of an execution attempt at INFO level.
// Format: "[HH:MM:SS] Starting <trigger> run <id>"
func (cl *ConsoleLogger) LogRunStart(ctx models.ExecutionContext) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	id := ctx.ExecutionID
	if cl.colorOutput {
		id = color.New(color.Bold).Sprint(id)
	}
	cl.write(fmt.Sprintf("[%s] Starting %s run %s\n", timestamp(), ctx.TriggerType, id))
}

// LogRunResult logs the terminal outcome of an attempt. Successes are INFO,
// failures are ERROR.
// Format: "[HH:MM:SS] Run <id> succeeded in 1s: <url>"
func (cl *ConsoleLogger) LogRunResult(entry models.ExecutionHistoryEntry) {
	if cl.writer == nil {
		return
	}

	level := "info"
	if !entry.Success {
		level = "error"
	}
	if !cl.shouldLog(level) {
		return
	}

	duration := FormatDuration(time.Duration(entry.DurationMS) * time.Millisecond)

	var message string
	if entry.Success {
		status := "succeeded"
		if cl.colorOutput {
			status = color.New(color.FgGreen).Sprint(status)
		}
		message = fmt.Sprintf("[%s] Run %s %s in %s: %s\n", timestamp(), entry.ExecutionID, status, duration, entry.PageURL)
	} else {
		status := "failed"
		if cl.colorOutput {
			status = color.New(color.FgRed).Sprint(status)
		}
		message = fmt.Sprintf("[%s] Run %s %s in %s: %s\n", timestamp(), entry.ExecutionID, status, duration, entry.Error)
	}
	cl.write(message)
}

func (cl *ConsoleLogger) write(s string) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	cl.writer.Write([]byte(s))
}

// timestamp returns the current time formatted as "15:04:05".
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// FormatDuration converts a duration to a short human-readable string.
// Examples: "1.5s", "1m30s", "2h15m"
func FormatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	case d%time.Second == 0:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	default:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
}

// NoOpLogger discards all messages.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// LogRunStart is a no-op implementation.
func (n *NoOpLogger) LogRunStart(ctx models.ExecutionContext) {}

// LogRunResult is a no-op implementation.
func (n *NoOpLogger) LogRunResult(entry models.ExecutionHistoryEntry) {}

// LogWarn is a no-op implementation.
func (n *NoOpLogger) LogWarn(message string) {}

// LogError is a no-op implementation.
func (n *NoOpLogger) LogError(message string) {}
