package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"subvoice/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent conversion and transcription runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				if runs == nil {
					runs = []history.Run{}
				}
				return writeJSON(cmd, runs)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					shortID(run.ID),
					string(run.Direction),
					string(run.Status),
					fmt.Sprintf("%d/%d", run.FilesCompleted, run.FilesTotal),
					formatTimestamp(run.StartedAt),
					formatElapsed(run.Duration()),
					run.Voice,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Direction", "Status", "Files", "Started", "Took", "Voice"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	cmd.AddCommand(newHistoryShowCommand(ctx))
	cmd.AddCommand(newHistoryPruneCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the files of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			run, err := resolveRun(cmd, store, args[0])
			if err != nil {
				return err
			}
			files, err := store.Files(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if asJSON {
				if files == nil {
					files = []history.FileRecord{}
				}
				return writeJSON(cmd, map[string]any{"run": run, "files": files})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s (%s, %s) started %s\n", run.ID, run.Direction, run.Status, formatTimestamp(run.StartedAt))
			if len(files) == 0 {
				fmt.Fprintln(out, "No files recorded")
				return nil
			}
			rows := make([][]string, 0, len(files))
			for _, f := range files {
				detail := f.OutputPath
				if f.ErrorMessage != "" {
					detail = f.ErrorMessage
				}
				rows = append(rows, []string{
					filepath.Base(f.SourcePath),
					string(f.Status),
					fmt.Sprintf("%d/%d", f.SegmentsDone, f.SegmentsTotal),
					strconv.Itoa(f.Rounds),
					detail,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"File", "Status", "Segments", "Rounds", "Output"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than the given number of days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 0 {
				return errors.New("--older-than must not be negative")
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			removed, err := store.Prune(cmd.Context(), time.Now().AddDate(0, 0, -days))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d runs\n", removed)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "older-than", 30, "Age in days of the runs to delete")
	return cmd
}

// resolveRun accepts a full run id or a unique prefix of a recent one.
func resolveRun(cmd *cobra.Command, store *history.Store, ref string) (*history.Run, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("run id is required")
	}
	run, err := store.GetRun(cmd.Context(), ref)
	if err != nil {
		return nil, err
	}
	if run != nil {
		return run, nil
	}
	recent, err := store.RecentRuns(cmd.Context(), 200)
	if err != nil {
		return nil, err
	}
	var match *history.Run
	for i := range recent {
		if !strings.HasPrefix(recent[i].ID, ref) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("run id prefix %q is ambiguous", ref)
		}
		match = &recent[i]
	}
	if match == nil {
		return nil, fmt.Errorf("run %q not found", ref)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
