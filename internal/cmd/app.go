package cmd

import (
	"fmt"
	"time"

	"github.com/harrison/reflector/internal/config"
	"github.com/harrison/reflector/internal/executor"
	"github.com/harrison/reflector/internal/logger"
	"github.com/harrison/reflector/internal/models"
	"github.com/harrison/reflector/internal/notify"
	"github.com/harrison/reflector/internal/redact"
	"github.com/harrison/reflector/internal/reflection"
	"github.com/spf13/cobra"
)

const dateFlagLayout = "2006-01-02"

// app holds the collaborators shared by the commands.
type app struct {
	home    string
	cfg     *config.Config
	console *logger.ConsoleLogger
}

// loadApp resolves the home directory, loads configuration and applies the
// persistent flags.
func loadApp(cmd *cobra.Command) (*app, error) {
	home, err := config.GetReflectorHome()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reflector home: %w", err)
	}

	var cfg *config.Config
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		cfg.ResolvePaths(home)
	} else {
		cfg, err = config.LoadConfigFromDir(home)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	var logLevelPtr, logDirPtr *string
	if cmd.Flags().Changed("log-level") {
		v, _ := cmd.Flags().GetString("log-level")
		logLevelPtr = &v
	}
	if cmd.Flags().Changed("log-dir") {
		v, _ := cmd.Flags().GetString("log-dir")
		logDirPtr = &v
	}
	cfg.MergeWithFlags(logLevelPtr, logDirPtr, nil, nil, nil)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &app{
		home:    home,
		cfg:     cfg,
		console: logger.NewConsoleLogger(cmd.OutOrStdout(), cfg.LogLevel),
	}, nil
}

// auditLogger opens the audit sink with the configured redaction rules.
func (a *app) auditLogger() (*logger.AuditLogger, error) {
	engine, err := redact.New(a.cfg.RedactConfig())
	if err != nil {
		return nil, fmt.Errorf("invalid redaction settings: %w", err)
	}
	return logger.NewAuditLogger(a.cfg.LogDir, a.cfg.AuditFile, engine)
}

// reflectionService builds the report generator.
func (a *app) reflectionService() (*reflection.Service, error) {
	return reflection.NewService(a.cfg.Reflection)
}

// orchestrator wires the reflection service, audit sink and notifier. opts
// are applied after the defaults.
func (a *app) orchestrator(opts ...executor.Option) (*executor.Orchestrator, error) {
	svc, err := a.reflectionService()
	if err != nil {
		return nil, err
	}
	audit, err := a.auditLogger()
	if err != nil {
		return nil, err
	}
	notifier := notify.NewWebhookClient(a.cfg.Notification.Timeout).WithUserAgent("reflector/" + Version)

	opts = append([]executor.Option{
		executor.WithHistoryCapacity(a.cfg.HistoryCapacity),
		executor.WithLogger(a.console),
	}, opts...)
	return executor.NewOrchestrator(svc, audit, notifier, opts...), nil
}

// parseDateRange reads --from and --to. Missing bounds default to the
// configured number of days ending now.
func parseDateRange(cmd *cobra.Command, rangeDays int, now time.Time) (models.DateRange, error) {
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")

	end := now
	if toStr != "" {
		t, err := time.ParseInLocation(dateFlagLayout, toStr, now.Location())
		if err != nil {
			return models.DateRange{}, fmt.Errorf("invalid --to date %q (want YYYY-MM-DD)", toStr)
		}
		end = t
	}

	dr := models.LastDays(end, rangeDays)
	if fromStr != "" {
		t, err := time.ParseInLocation(dateFlagLayout, fromStr, now.Location())
		if err != nil {
			return models.DateRange{}, fmt.Errorf("invalid --from date %q (want YYYY-MM-DD)", fromStr)
		}
		dr.Start = t
	}

	if dr.Start.After(dr.End) {
		return models.DateRange{}, fmt.Errorf("--from %s is after --to %s",
			dr.Start.Format(dateFlagLayout), dr.End.Format(dateFlagLayout))
	}
	return dr, nil
}

func addDateRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "First day of the report (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Last day of the report (YYYY-MM-DD, default: today)")
}
