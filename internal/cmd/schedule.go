package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/reflector/internal/config"
	"github.com/harrison/reflector/internal/logger"
	"github.com/harrison/reflector/internal/models"
	"github.com/harrison/reflector/internal/schedule"
	"github.com/spf13/cobra"
)

// scheduleRegistrar is the registration port used by the schedule commands.
type scheduleRegistrar interface {
	Register(ctx context.Context, opts schedule.RegisterOptions) (*models.Registration, error)
	Unregister(ctx context.Context) error
	Status(ctx context.Context) (*models.ScheduleStatus, error)
}

// newRegistrar builds the registrar for the loaded app. Tests replace it.
var newRegistrar = func(a *app) (scheduleRegistrar, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate reflector binary: %w", err)
	}
	command := scheduledRunCommand(a.home, exe)
	auditPath := a.cfg.AuditPath()

	return schedule.NewRegistrar(config.SchedulePath(a.home), command,
		schedule.WithLastExecution(func() (*time.Time, error) {
			return lastAuditTime(auditPath)
		}),
	), nil
}

// scheduledRunCommand is the command line the crontab entry executes.
func scheduledRunCommand(home, exe string) string {
	return fmt.Sprintf("%s=%s %s run --trigger=%s",
		config.HomeEnvVar, shellQuote(home), shellQuote(exe), models.TriggerScheduled)
}

// NewScheduleCommand creates the schedule command group
func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage the crontab entry that runs reflector",
		Long: `Register, remove and inspect the operating system schedule that runs
"reflector run". The expression uses the standard five cron fields
(minute hour day-of-month month day-of-week).`,
	}

	cmd.AddCommand(newScheduleRegisterCommand())
	cmd.AddCommand(newScheduleUnregisterCommand())
	cmd.AddCommand(newScheduleStatusCommand())
	cmd.AddCommand(newScheduleValidateCommand())

	return cmd
}

func newScheduleRegisterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Install the schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			expr := a.cfg.Schedule.Cron
			if cmd.Flags().Changed("cron") {
				expr, _ = cmd.Flags().GetString("cron")
			}
			force, _ := cmd.Flags().GetBool("force")

			reg, err := newRegistrar(a)
			if err != nil {
				return err
			}
			result, err := reg.Register(cmd.Context(), schedule.RegisterOptions{CronExpression: expr, Force: force})
			if err != nil {
				return errors.New(formatScheduleError(err))
			}

			w := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprintf(w, "Schedule registered\n")
			fmt.Fprintf(w, "  Cron: %s\n", result.CronExpression)
			fmt.Fprintf(w, "  Next run: %s\n", result.NextExecution.Format(time.RFC1123))
			fmt.Fprintf(w, "  State: %s\n", result.ConfigPath)
			return nil
		},
	}

	cmd.Flags().String("cron", "", "Five-field cron expression (default: schedule.cron from config)")
	cmd.Flags().Bool("force", false, "Replace an existing registration")

	return cmd
}

func newScheduleUnregisterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unregister",
		Short: "Remove the schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			reg, err := newRegistrar(a)
			if err != nil {
				return err
			}
			if err := reg.Unregister(cmd.Context()); err != nil {
				return errors.New(formatScheduleError(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schedule removed")
			return nil
		},
	}
}

func newScheduleStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the registered schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			reg, err := newRegistrar(a)
			if err != nil {
				return err
			}
			status, err := reg.Status(cmd.Context())
			if err != nil {
				return errors.New(formatScheduleError(err))
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func newScheduleValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate EXPR",
		Short: "Check a cron expression and show its next run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := schedule.NextExecution(args[0], time.Now())
			if err != nil {
				return errors.New(formatScheduleError(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: next run at %s\n", next.Format(time.RFC1123))
			return nil
		},
	}
}

func printStatus(w io.Writer, status *models.ScheduleStatus) {
	if !status.Registered {
		color.New(color.FgYellow).Fprintf(w, "Not registered\n")
	} else {
		color.New(color.FgGreen).Fprintf(w, "Registered\n")
		fmt.Fprintf(w, "  Cron: %s\n", status.CronExpression)
		if status.NextExecution != nil {
			fmt.Fprintf(w, "  Next run: %s\n", status.NextExecution.Format(time.RFC1123))
		}
	}
	if status.LastExecution != nil {
		fmt.Fprintf(w, "  Last run: %s\n", status.LastExecution.Local().Format(time.RFC1123))
	} else {
		fmt.Fprintf(w, "  Last run: never\n")
	}
}

// lastAuditTime returns the time of the newest audit entry.
func lastAuditTime(path string) (*time.Time, error) {
	entries, err := logger.ReadAuditFile(path, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 || entries[0].Time.IsZero() {
		return nil, nil
	}
	t := entries[0].Time
	return &t, nil
}

// shellQuote wraps s in single quotes for the crontab command line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
