package cmd

import (
	"fmt"
	"time"

	"github.com/harrison/reflector/internal/models"
	"github.com/spf13/cobra"
)

// NewPreviewCommand creates the preview command
func NewPreviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the reflection report without publishing it",
		Long: `Collect data and print the Markdown report to stdout.

Nothing is published, written to disk or recorded in the audit log.`,
		Args: cobra.NoArgs,
		RunE: previewCommand,
	}
	addDateRangeFlags(cmd)
	return cmd
}

func previewCommand(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	dr, err := parseDateRange(cmd, a.cfg.Reflection.RangeDays, time.Now())
	if err != nil {
		return err
	}
	svc, err := a.reflectionService()
	if err != nil {
		return err
	}

	result, err := svc.Execute(cmd.Context(), models.ReflectionOptions{DateRange: dr, DryRun: true})
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), result.Report)
	return nil
}
