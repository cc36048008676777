package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for reflector
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reflector",
		Short: "Scheduled work reflection reports",
		Long: `Reflector collects the pull requests and tracked hours of a period,
builds a reflection report and publishes it to Notion or a local file.

Runs can be started by hand, by the built-in daemon, or by a crontab entry
managed with "reflector schedule". Every attempt is recorded in an
append-only audit log with secrets masked.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true, // main prints it
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: $REFLECTOR_HOME/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "Console log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().String("log-dir", "", "Directory for the audit log")

	// Add subcommands
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewPreviewCommand())
	cmd.AddCommand(NewDaemonCommand())
	cmd.AddCommand(NewLogsCommand())
	cmd.AddCommand(NewScheduleCommand())

	return cmd
}
