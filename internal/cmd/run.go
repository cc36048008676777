package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harrison/reflector/internal/executor"
	"github.com/harrison/reflector/internal/logger"
	"github.com/harrison/reflector/internal/models"
	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate and publish a reflection report now",
		Long: `Run one reflection attempt immediately.

The attempt is recorded in the audit log. When it fails and a notification
URL is configured (or given with --notify-url), a failure notification is
posted to it. The command exits with status 1 when the attempt fails.

Examples:
  reflector run                                   # last 7 days
  reflector run --from 2026-10-01 --to 2026-10-07
  reflector run --notify-url https://hooks.example/reflector
  reflector run --json                            # print the history entry as JSON`,
		Args: cobra.NoArgs,
		RunE: runCommand,
	}

	addDateRangeFlags(cmd)
	cmd.Flags().String("notify-url", "", "URL receiving a POST when the attempt fails (overrides config)")
	cmd.Flags().String("timeout", "", "Maximum duration of the attempt (e.g., 30s, 5m)")
	cmd.Flags().Bool("json", false, "Print the execution record as JSON")
	// Set by the crontab entry that schedule register installs.
	cmd.Flags().String("trigger", string(models.TriggerManual), "Trigger type recorded for the attempt (manual or scheduled)")
	_ = cmd.Flags().MarkHidden("trigger")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	var notifyPtr *string
	if cmd.Flags().Changed("notify-url") {
		v, _ := cmd.Flags().GetString("notify-url")
		notifyPtr = &v
	}
	var timeoutPtr *time.Duration
	if cmd.Flags().Changed("timeout") {
		timeoutStr, _ := cmd.Flags().GetString("timeout")
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return fmt.Errorf("invalid timeout format %q: %w", timeoutStr, err)
		}
		timeoutPtr = &timeout
	}
	a.cfg.MergeWithFlags(nil, nil, timeoutPtr, notifyPtr, nil)
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	triggerStr, _ := cmd.Flags().GetString("trigger")
	trigger := models.TriggerType(triggerStr)
	if !trigger.Valid() {
		return fmt.Errorf("invalid --trigger %q: must be %q or %q", triggerStr, models.TriggerManual, models.TriggerScheduled)
	}

	dr, err := parseDateRange(cmd, a.cfg.Reflection.RangeDays, time.Now())
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	var opts []executor.Option
	if asJSON {
		// Keep stdout parseable
		opts = append(opts, executor.WithLogger(logger.NewNoOpLogger()))
	}
	orch, err := a.orchestrator(opts...)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	entry := orch.Run(ctx, executor.RunOptions{
		DateRange:       dr,
		TriggerType:     trigger,
		NotificationURL: a.cfg.Notification.URL,
	})

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("failed to encode execution record: %w", err)
		}
	} else {
		printEntry(cmd.OutOrStdout(), entry)
	}

	if !entry.Success {
		return fmt.Errorf("execution %s failed: %s", entry.ExecutionID, entry.Error)
	}
	return nil
}
