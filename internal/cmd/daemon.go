package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/harrison/reflector/internal/config"
	"github.com/harrison/reflector/internal/executor"
	"github.com/harrison/reflector/internal/filelock"
	"github.com/harrison/reflector/internal/models"
	"github.com/harrison/reflector/internal/watch"
	"github.com/spf13/cobra"
)

// NewDaemonCommand creates the daemon command
func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run reflections on a cron schedule in the foreground",
		Long: `Start an in-process scheduler that runs a reflection attempt on every
tick of the cron expression (config schedule.cron or --cron). A tick that
arrives while the previous attempt is still running is skipped.

Edits to schedule.cron in the config file are picked up without a restart
unless --cron was given.

Only one daemon runs per reflector home at a time.

Stop with Ctrl-C (SIGINT) or SIGTERM; the execution history of the session
is printed on shutdown.`,
		Args: cobra.NoArgs,
		RunE: daemonCommand,
	}

	cmd.Flags().String("cron", "", "Five-field cron expression (overrides config)")
	cmd.Flags().String("notify-url", "", "URL receiving a POST when an attempt fails (overrides config)")

	return cmd
}

func daemonCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	var cronPtr, notifyPtr *string
	if cmd.Flags().Changed("cron") {
		v, _ := cmd.Flags().GetString("cron")
		cronPtr = &v
	}
	if cmd.Flags().Changed("notify-url") {
		v, _ := cmd.Flags().GetString("notify-url")
		notifyPtr = &v
	}
	a.cfg.MergeWithFlags(nil, nil, nil, notifyPtr, cronPtr)
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}
	d := &daemon{
		app:        a,
		runner:     &timeoutRunner{orch: orch, timeout: a.cfg.Timeout},
		configPath: configFilePath(cmd, a.home),
		pinnedCron: cronPtr != nil,
	}

	lock := filelock.NewFileLock(config.DaemonLockPath(a.home))
	err = lock.TryWithLock(func() error {
		return d.serve(cmd, orch)
	})
	if errors.Is(err, filelock.ErrLocked) {
		return fmt.Errorf("another reflector daemon is already running for %s", a.home)
	}
	return err
}

// serve runs the scheduler until the process is signalled.
func (d *daemon) serve(cmd *cobra.Command, orch *executor.Orchestrator) error {
	console := d.app.console
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.start(ctx); err != nil {
		return err
	}

	var changes <-chan watch.Event
	var watchErrs <-chan error
	if !d.pinnedCron {
		if watcher, err := watch.NewFileWatcher(d.configPath); err != nil {
			console.LogWarn(fmt.Sprintf("config changes will not be picked up: %v", err))
		} else {
			defer watcher.Close()
			changes, watchErrs = watcher.Events(), watcher.Errors()
			console.LogDebug(fmt.Sprintf("Watching %s for schedule changes", d.configPath))
		}
	}

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case ev := <-changes:
			console.LogTrace(fmt.Sprintf("config %s: %s", ev.Op, ev.Path))
			if ev.Op == watch.Changed {
				d.reload(ctx)
			}
		case err := <-watchErrs:
			console.LogWarn(fmt.Sprintf("config watcher: %v", err))
		}
	}

	console.LogInfo("Shutting down, waiting for a running attempt to finish")
	d.sched.Stop()

	printHistory(cmd.OutOrStdout(), orch.ExecutionHistory())
	return nil
}

// daemon owns the scheduler of a running daemon command.
type daemon struct {
	app        *app
	runner     executor.Runner
	configPath string
	pinnedCron bool
	sched      *executor.Scheduler
}

func (d *daemon) newScheduler(cronExpr string) (*executor.Scheduler, error) {
	return executor.NewScheduler(d.runner, executor.SchedulerConfig{
		CronExpression:  cronExpr,
		RangeDays:       d.app.cfg.Reflection.RangeDays,
		NotificationURL: d.app.cfg.Notification.URL,
	}, d.app.console)
}

func (d *daemon) start(ctx context.Context) error {
	sched, err := d.newScheduler(d.app.cfg.Schedule.Cron)
	if err != nil {
		return errors.New(formatScheduleError(err))
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	d.sched = sched
	d.app.console.LogInfo(fmt.Sprintf("Scheduler started (%s), next run at %s",
		sched.Expression(), sched.Next().Format(time.RFC3339)))
	return nil
}

// reload re-reads the config file and swaps the scheduler when schedule.cron
// changed. An unreadable config or invalid expression keeps the current one.
func (d *daemon) reload(ctx context.Context) {
	cfg, err := config.LoadConfig(d.configPath)
	if err != nil {
		d.app.console.LogWarn(fmt.Sprintf("config reload failed, keeping %q: %v", d.sched.Expression(), err))
		return
	}
	if cfg.Schedule.Cron == d.sched.Expression() {
		d.app.console.LogDebug(fmt.Sprintf("Config changed, schedule still %s", d.sched.Expression()))
		return
	}

	next, err := d.newScheduler(cfg.Schedule.Cron)
	if err != nil {
		d.app.console.LogWarn(fmt.Sprintf("%s; keeping %q", formatScheduleError(err), d.sched.Expression()))
		return
	}
	d.sched.Stop()
	if err := next.Start(ctx); err != nil {
		d.app.console.LogError(fmt.Sprintf("failed to restart scheduler: %v", err))
		return
	}
	d.sched = next
	d.app.cfg.Schedule.Cron = next.Expression()
	d.app.console.LogInfo(fmt.Sprintf("Schedule changed to %s, next run at %s",
		next.Expression(), next.Next().Format(time.RFC3339)))
}

// configFilePath is the file loadApp read the configuration from.
func configFilePath(cmd *cobra.Command, home string) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	return config.ConfigPath(home)
}

// timeoutRunner bounds each scheduled attempt by the configured timeout.
type timeoutRunner struct {
	orch    *executor.Orchestrator
	timeout time.Duration
}

func (r *timeoutRunner) Run(ctx context.Context, opts executor.RunOptions) models.ExecutionHistoryEntry {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.orch.Run(ctx, opts)
}
