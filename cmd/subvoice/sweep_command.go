package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var days int
	var all bool
	var list bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove stale work directories left by interrupted runs",
		Long: "Work directories hold the per-segment clips of unfinished conversions so a later run\n" +
			"can resume. sweep removes those not touched for workspace.cleanup_days days.\n" +
			"Directories locked by a running conversion are never removed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			ws, err := ctx.workspace(logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if list {
				dirs, err := ws.List()
				if err != nil {
					return fmt.Errorf("list work directories: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, dirs)
				}
				if len(dirs) == 0 {
					fmt.Fprintf(out, "No work directories under %s\n", ws.Root())
					return nil
				}
				rows := make([][]string, 0, len(dirs))
				for _, d := range dirs {
					rows = append(rows, []string{d.Name, strconv.Itoa(d.Artifacts), formatBytes(d.Size), formatTimestamp(d.ModTime), yesNo(d.Locked)})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Directory", "Clips", "Size", "Modified", "In use"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			}

			maxAge := time.Duration(cfg.Workspace.CleanupDays) * 24 * time.Hour
			if cmd.Flags().Changed("older-than") {
				maxAge = time.Duration(days) * 24 * time.Hour
			}
			if all {
				maxAge = time.Nanosecond
			}
			if maxAge <= 0 {
				fmt.Fprintln(out, "Sweeping is disabled (workspace.cleanup_days = 0); pass --all or --older-than")
				return nil
			}

			result := ws.Sweep(cmd.Context(), maxAge)
			if asJSON {
				errs := make(map[string]string, len(result.Errors))
				for _, e := range result.Errors {
					errs[e.Path] = e.Error.Error()
				}
				return writeJSON(cmd, map[string]any{
					"removed": result.Removed,
					"locked":  result.Locked,
					"errors":  errs,
				})
			}
			for _, path := range result.Removed {
				fmt.Fprintf(out, "Removed %s\n", path)
			}
			for _, path := range result.Locked {
				fmt.Fprintf(out, "Skipped %s (in use)\n", path)
			}
			for _, e := range result.Errors {
				fmt.Fprintf(out, "Failed %s: %v\n", e.Path, e.Error)
			}
			fmt.Fprintf(out, "Removed %d work directories\n", len(result.Removed))
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d work directories could not be removed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "older-than", 0, "Remove directories untouched for this many days (default: workspace.cleanup_days)")
	cmd.Flags().BoolVar(&all, "all", false, "Remove every unlocked work directory regardless of age")
	cmd.Flags().BoolVar(&list, "list", false, "List work directories instead of removing them")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
