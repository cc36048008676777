package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harrison/reflector/internal/logger"
	"github.com/harrison/reflector/internal/models"
	"github.com/harrison/reflector/internal/watch"
	"github.com/spf13/cobra"
)

// NewLogsCommand creates the logs command
func NewLogsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent audit log entries",
		Long: `Print the most recent entries of the execution audit log, oldest first.
Error messages and stacks were masked for secrets when they were written.

With --follow the command keeps running and prints entries as they are
appended, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: logsCommand,
	}

	cmd.Flags().Int("limit", 20, "Maximum number of entries to show")
	cmd.Flags().Bool("json", false, "Print entries as JSON lines")
	cmd.Flags().BoolP("follow", "f", false, "Keep printing new entries")

	return cmd
}

func logsCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 1 {
		return fmt.Errorf("--limit must be at least 1, got %d", limit)
	}
	asJSON, _ := cmd.Flags().GetBool("json")
	follow, _ := cmd.Flags().GetBool("follow")

	path := a.cfg.AuditPath()
	entries, offset, err := logger.ReadAuditTail(path, limit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	show := func(entries []models.LogEntry) error {
		if asJSON {
			return printLogJSON(w, entries)
		}
		printLogEntries(w, entries)
		return nil
	}
	if !follow {
		return show(entries)
	}
	if len(entries) > 0 {
		if err := show(entries); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(a.cfg.LogDir, 0755); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}
	watcher, err := watch.NewFileWatcher(path)
	if err != nil {
		return err
	}
	defer watcher.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return followAudit(ctx, path, offset, watcher.Events(), watcher.Errors(), a.console, show)
}

// followAudit prints entries appended after offset, first for anything
// written before the watcher was running and then each time the sink
// changes, until ctx is done.
func followAudit(ctx context.Context, path string, offset int64, changes <-chan watch.Event, errs <-chan error, console *logger.ConsoleLogger, show func([]models.LogEntry) error) error {
	catchUp := func() error {
		entries, next, err := logger.ReadAuditFrom(path, offset)
		if err != nil {
			console.LogWarn(err.Error())
			return nil
		}
		offset = next
		if len(entries) == 0 {
			return nil
		}
		return show(entries)
	}

	if err := catchUp(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			console.LogWarn(fmt.Sprintf("audit log watcher: %v", err))
		case ev := <-changes:
			if ev.Op == watch.Removed {
				offset = 0
				continue
			}
			if err := catchUp(); err != nil {
				return err
			}
		}
	}
}

func printLogJSON(w io.Writer, entries []models.LogEntry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(flattenEntry(e)); err != nil {
			return fmt.Errorf("failed to encode log entry: %w", err)
		}
	}
	return nil
}

// flattenEntry restores the on-disk line shape of an entry.
func flattenEntry(e models.LogEntry) map[string]any {
	line := make(map[string]any, len(e.Details)+4)
	for k, v := range e.Details {
		line[k] = v
	}
	line["time"] = e.Time.UTC().Format(time.RFC3339Nano)
	line["level"] = string(e.Level)
	line["executionId"] = e.ExecutionID
	line["event"] = string(e.Event)
	return line
}
