package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"subvoice/internal/assembly"
	"subvoice/internal/config"
	"subvoice/internal/events"
	"subvoice/internal/history"
	"subvoice/internal/jobs"
	"subvoice/internal/notifications"
	"subvoice/internal/tts"
)

type convertFlags struct {
	voice     string
	rate      int
	volume    int
	pitch     int
	outputDir string
	format    string
	workers   int
	batchSize int
	noResume  bool
	json      bool
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var flags convertFlags

	cmd := &cobra.Command{
		Use:   "convert <file.srt|dir>...",
		Short: "Synthesize a synchronized speech track from subtitle files",
		Long: "Convert each subtitle file into a single audio track whose speech lines up with the\n" +
			"subtitle timestamps. Directories contribute the .srt files they contain.\n\n" +
			"Interrupt once to stop after the current batch (artifacts are kept for a later\n" +
			"resume), twice to stop immediately. SIGUSR1 pauses the run and SIGUSR2 resumes it.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("provide at least one subtitle file or directory. Example: subvoice convert episode.srt")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandInputs(args, isSubtitleFile, "subtitle (.srt)")
			if err != nil {
				return err
			}
			env, err := ctx.prepareRun(cmd.Context(), "convert")
			if err != nil {
				return err
			}
			defer env.close()

			cfg := *env.cfg
			applyConvertOverrides(cmd, &cfg, flags)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid options: %w", err)
			}

			opts := jobs.OptionsFromConfig(&cfg)
			opts.Resume = !flags.noResume
			if dir := strings.TrimSpace(flags.outputDir); dir != "" {
				abs, err := filepath.Abs(dir)
				if err != nil {
					return fmt.Errorf("resolve output directory: %w", err)
				}
				opts.OutputDir = abs
			}
			codec, ext, err := codecFor(flags.format, &cfg)
			if err != nil {
				return err
			}
			opts.OutputExt = ext

			stderr := cmd.ErrOrStderr()
			sinks := []events.Sink{events.NewLogSink(env.logger), env.alerts}
			var progress *progressLine
			if !flags.json && isTerminal(stderr) {
				progress = newProgressLine(stderr)
				sinks = append(sinks, progress)
			}

			backend := tts.NewEdgeBackend(cfg.TTSBinary())
			controller, err := jobs.NewController(opts, jobs.Deps{
				Synth:     tts.NewClient(backend, env.logger),
				Assembler: assembly.NewAssembler(codec, env.logger),
				Workspace: env.ws,
				History:   env.store,
				Sink:      events.Tee(sinks...),
				Logger:    env.logger,
			})
			if err != nil {
				return err
			}

			runCtx, stop := watchSignals(cmd.Context(), controller, stderr)
			summary, err := controller.Run(runCtx, files)
			stop()
			if progress != nil {
				progress.finish()
			}
			if err != nil {
				return err
			}
			env.notifyRun(cmd.Context(), notifications.RunSummary{
				Direction: "speech",
				Status:    string(summary.Status),
				Completed: summary.Completed,
				Total:     len(summary.Files),
				Duration:  summary.Elapsed,
			})

			if flags.json {
				if err := writeJSON(cmd, convertJSON(summary, env.logPath)); err != nil {
					return err
				}
			} else {
				printConvertSummary(cmd.OutOrStdout(), summary, env.logPath)
			}
			return convertOutcome(summary, len(files))
		},
	}

	cmd.Flags().StringVar(&flags.voice, "voice", "", "Voice name (see subvoice voices)")
	cmd.Flags().IntVar(&flags.rate, "rate", 0, "Speaking rate adjustment in percent (-100..100)")
	cmd.Flags().IntVar(&flags.volume, "volume", 0, "Volume adjustment in percent (-100..100)")
	cmd.Flags().IntVar(&flags.pitch, "pitch", 0, "Pitch adjustment in Hz (-100..100)")
	cmd.Flags().StringVarP(&flags.outputDir, "output-dir", "o", "", "Directory for finished tracks (default: beside each input)")
	cmd.Flags().StringVar(&flags.format, "format", "mp3", "Output format: mp3 or wav")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "Override conversion.max_workers")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", 0, "Override conversion.batch_size")
	cmd.Flags().BoolVar(&flags.noResume, "no-resume", false, "Ignore clips checkpointed by an earlier run")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the run summary as JSON")
	return cmd
}

func applyConvertOverrides(cmd *cobra.Command, cfg *config.Config, flags convertFlags) {
	changed := cmd.Flags().Changed
	if v := strings.TrimSpace(flags.voice); v != "" {
		cfg.Voice.Name = v
	}
	if changed("rate") {
		cfg.Voice.Rate = flags.rate
	}
	if changed("volume") {
		cfg.Voice.Volume = flags.volume
	}
	if changed("pitch") {
		cfg.Voice.Pitch = flags.pitch
	}
	if changed("workers") {
		cfg.Conversion.MaxWorkers = flags.workers
	}
	if changed("batch-size") {
		cfg.Conversion.BatchSize = flags.batchSize
	}
}

// codecFor picks the assembler codec and output extension for format.
func codecFor(format string, cfg *config.Config) (assembly.Codec, string, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), ".")) {
	case "", "mp3":
		return assembly.NewFFmpegCodec(cfg.FFmpegBinary(), cfg.Paths.WorkDir), ".mp3", nil
	case "wav":
		return assembly.WAVCodec{}, ".wav", nil
	default:
		return nil, "", fmt.Errorf("unsupported format %q (use mp3 or wav)", format)
	}
}

type convertSummaryJSON struct {
	jobs.Summary
	LogPath string            `json:"log_path,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func convertJSON(summary jobs.Summary, logPath string) convertSummaryJSON {
	out := convertSummaryJSON{Summary: summary, LogPath: logPath}
	for _, file := range summary.Files {
		if file.Err == nil {
			continue
		}
		if out.Errors == nil {
			out.Errors = make(map[string]string)
		}
		out.Errors[file.Source] = file.Error()
	}
	return out
}

func printConvertSummary(out io.Writer, summary jobs.Summary, logPath string) {
	rows := make([][]string, 0, len(summary.Files))
	for _, file := range summary.Files {
		detail := file.Output
		if file.Err != nil {
			detail = file.Error()
		}
		rows = append(rows, []string{
			filepath.Base(file.Source),
			string(file.Status),
			fmt.Sprintf("%d/%d", file.Succeeded, file.Segments),
			strconv.Itoa(file.Rounds),
			detail,
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(
			[]string{"File", "Status", "Segments", "Rounds", "Output"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		))
	}
	fmt.Fprintf(out, "Run %s %s: %d of %d files completed in %s\n",
		summary.RunID, summary.Status, summary.Completed, len(summary.Files), formatElapsed(summary.Elapsed))
	if logPath != "" {
		fmt.Fprintf(out, "Run log: %s\n", logPath)
	}
}

// convertOutcome turns a summary into the command's exit status.
func convertOutcome(summary jobs.Summary, total int) error {
	switch summary.Status {
	case history.RunCancelled:
		return context.Canceled
	case history.RunPartial:
		return fmt.Errorf("%d of %d files did not complete", total-summary.Completed, total)
	default:
		return nil
	}
}
