// cmd/relay/maintenance.go
//
// Housekeeping commands: temp cleanup, output archival, the disk
// utilization check, and the interactive status board.

package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kingrea/The-Relay/internal/diskguard"
	"github.com/kingrea/The-Relay/internal/retention"
	"github.com/kingrea/The-Relay/internal/tui"
	"github.com/kingrea/The-Relay/internal/workflow/engine"
)

func newCleanCommand(app *appContext) *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove aged temp files and expired cache entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			maxAge := app.cfg.Retention.TempMaxAge
			if cmd.Flags().Changed("hours") {
				maxAge = time.Duration(hours) * time.Hour
			}
			manager := retention.New(app.ns, app.cacheStore(), retention.WithLogger(app.logger))
			report, err := manager.CleanTemp(cmd.Context(), maxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "clean: %d temp, %d cache, %d swept, %d skipped\n",
				report.TempRemoved, report.CacheRemoved, report.Swept, report.Skipped)
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "remove temp and cache files older than this many hours")
	return cmd
}

func newArchiveCommand(app *appContext) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Bundle aged output files into a tar.gz under archives/",
		RunE: func(cmd *cobra.Command, _ []string) error {
			maxAge := app.cfg.Retention.ArchiveMaxAge
			if cmd.Flags().Changed("days") {
				maxAge = time.Duration(days) * 24 * time.Hour
			}
			manager := retention.New(app.ns, app.cacheStore(), retention.WithLogger(app.logger))
			report, err := manager.ArchiveOutputs(cmd.Context(), maxAge)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if report.Recovered > 0 {
				fmt.Fprintf(out, "recovered %d staged file(s) from an interrupted archive\n", report.Recovered)
			}
			if report.Archived == 0 {
				fmt.Fprintln(out, "nothing to archive")
				return nil
			}
			fmt.Fprintf(out, "archived %d file(s) into %s\n", report.Archived, report.Bundle)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "archive output files older than this many days")
	return cmd
}

func newCheckUsageCommand(app *appContext) *cobra.Command {
	var threshold float64
	cmd := &cobra.Command{
		Use:   "check-usage",
		Short: "Report disk utilization for the storage root",
		RunE: func(cmd *cobra.Command, _ []string) error {
			effective := app.cfg.Disk.ThresholdPercent
			if cmd.Flags().Changed("threshold") {
				effective = threshold
			}
			guard := diskguard.New(diskguard.WithLogger(app.logger))
			report, err := guard.Check(app.ns.Root(), effective)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "usage %.1f%% of %s (threshold %.0f%%)\n",
				report.UsedPercent, report.Path, report.Threshold)
			// Pressure is a warning, not a failure: the caller still
			// gets exit 0 plus a pointer at the reclaim commands.
			if report.Warning {
				fmt.Fprintln(out, "warning: storage usage above threshold; run 'relay clean' or 'relay archive' to reclaim space")
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 80, "warn when used percent is above this value")
	return cmd
}

func newStatusCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Open the interactive status board",
		RunE: func(_ *cobra.Command, _ []string) error {
			runs := engine.NewRunStore(app.ns.RunsPath())
			guard := diskguard.New(diskguard.WithLogger(app.logger))
			board := tui.NewBoard(app.ns, runs, tui.WithDiskGuard(guard, app.cfg.Disk.ThresholdPercent))
			p := tea.NewProgram(board, tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("status board: %w", err)
			}
			return nil
		},
	}
}
