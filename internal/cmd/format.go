package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/reflector/internal/logger"
	"github.com/harrison/reflector/internal/models"
)

// printEntry prints one execution record.
func printEntry(w io.Writer, entry models.ExecutionHistoryEntry) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	fmt.Fprintf(w, "\nExecution %s\n", entry.ExecutionID)
	fmt.Fprintf(w, "  Started: %s\n", entry.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "  Duration: %s\n", formatMillis(entry.DurationMS))
	fmt.Fprintf(w, "  Status: ")
	if entry.Success {
		green.Fprintf(w, "success\n")
		fmt.Fprintf(w, "  Report: %s\n", entry.PageURL)
	} else {
		red.Fprintf(w, "failed\n")
		fmt.Fprintf(w, "  Error: ")
		red.Fprintf(w, "%s\n", entry.Error)
		gray.Fprintf(w, "  Details are in the audit log (reflector logs)\n")
	}
}

// printHistory prints a compact table of execution records, oldest first.
func printHistory(w io.Writer, history []models.ExecutionHistoryEntry) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	cyan.Fprintf(w, "\n=== Execution History (%d) ===\n\n", len(history))
	if len(history) == 0 {
		fmt.Fprintf(w, "No executions in this session\n")
		return
	}
	for _, e := range history {
		fmt.Fprintf(w, "%s  %-8s ", e.Timestamp.Format("2006-01-02 15:04:05"), formatMillis(e.DurationMS))
		if e.Success {
			green.Fprintf(w, "OK    ")
			fmt.Fprintf(w, "%s  %s\n", e.ExecutionID, e.PageURL)
		} else {
			red.Fprintf(w, "FAIL  ")
			fmt.Fprintf(w, "%s  %s\n", e.ExecutionID, e.Error)
		}
	}
}

// printLogEntries prints audit log entries one per line.
func printLogEntries(w io.Writer, entries []models.LogEntry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No audit log entries found\n")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s %s %-7s %s%s\n",
			e.Time.Local().Format("2006-01-02 15:04:05"),
			levelLabel(e.Level),
			e.Event,
			e.ExecutionID,
			formatDetails(e.Details))
	}
}

func levelLabel(level models.LogLevel) string {
	label := fmt.Sprintf("%-5s", strings.ToUpper(string(level)))
	switch level {
	case models.LevelError:
		return color.New(color.FgRed).Sprint(label)
	case models.LevelWarn:
		return color.New(color.FgYellow).Sprint(label)
	case models.LevelInfo:
		return color.New(color.FgCyan).Sprint(label)
	default:
		return color.New(color.FgHiBlack).Sprint(label)
	}
}

// formatDetails renders details as sorted key=value pairs.
func formatDetails(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		if k == "errorStack" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := details[k]
		if s, ok := v.(string); ok && strings.ContainsAny(s, " \t") {
			fmt.Fprintf(&b, " %s=%q", k, s)
		} else {
			fmt.Fprintf(&b, " %s=%v", k, v)
		}
	}
	return b.String()
}

// formatMillis formats a millisecond duration for display.
func formatMillis(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return logger.FormatDuration(time.Duration(ms) * time.Millisecond)
}

// formatScheduleError maps schedule errors to user messages. Other errors are
// returned unchanged.
func formatScheduleError(err error) string {
	var se *models.ScheduleError
	if !errors.As(err, &se) {
		return err.Error()
	}
	switch se.Kind {
	case models.ErrInvalidCronExpression:
		return fmt.Sprintf("invalid cron expression: %q", se.Expression)
	case models.ErrAlreadyRegistered:
		return fmt.Sprintf("schedule already registered (%s); use --force to overwrite", se.Existing)
	case models.ErrNotRegistered:
		return "no schedule is registered"
	case models.ErrPlatformNotSupported:
		return fmt.Sprintf("platform not supported: %s", se.Platform)
	case models.ErrPermissionDenied:
		return fmt.Sprintf("permission denied: %s", se.Path)
	case models.ErrExecutionFailed:
		return fmt.Sprintf("schedule command failed: %s", se.Message)
	default:
		return se.Error()
	}
}
