package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"subvoice/internal/events"
	"subvoice/internal/history"
	"subvoice/internal/language"
	"subvoice/internal/logging"
	"subvoice/internal/media"
	"subvoice/internal/media/ffprobe"
	"subvoice/internal/notifications"
	"subvoice/internal/services/llm"
	"subvoice/internal/services/whisperx"
	"subvoice/internal/transcribe"
	"subvoice/internal/translate"
)

type transcribeFlags struct {
	target      string
	source      string
	outputDir   string
	model       string
	cuda        bool
	noTranslate bool
	json        bool
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var flags transcribeFlags

	cmd := &cobra.Command{
		Use:   "transcribe <media|dir>...",
		Short: "Create subtitles from audio or video files (WhisperX)",
		Long: "Transcribe each input with WhisperX and write <name>_<lang>.srt beside it. When the\n" +
			"detected language differs from the target language, the subtitles are translated\n" +
			"through the configured chat completion API first. Video inputs (" +
			strings.Join(media.VideoExtensions, " ") + ") have their audio extracted with ffmpeg.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("provide at least one media file or directory. Example: subvoice transcribe movie.mkv")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandInputs(args, media.IsSupported, "supported media")
			if err != nil {
				return err
			}
			env, err := ctx.prepareRun(cmd.Context(), "transcribe")
			if err != nil {
				return err
			}
			defer env.close()
			cfg := env.cfg

			target := cfg.Transcription.TargetLanguage
			if strings.TrimSpace(flags.target) != "" {
				target = flags.target
			}
			if language.ToISO2(target) == "" {
				return fmt.Errorf("unknown target language %q", target)
			}
			if flags.source != "" && language.ToISO2(flags.source) == "" {
				return fmt.Errorf("unknown source language %q", flags.source)
			}
			model := cfg.Transcription.WhisperXModel
			if strings.TrimSpace(flags.model) != "" {
				model = strings.TrimSpace(flags.model)
			}
			outputDir := strings.TrimSpace(flags.outputDir)
			if outputDir == "" {
				outputDir = cfg.Paths.OutputDir
			} else if abs, err := filepath.Abs(outputDir); err == nil {
				outputDir = abs
			}

			extractor := media.NewExtractor(cfg.FFmpegBinary(), ffprobe.NewProber(cfg.FFprobeBinary()), env.logger)
			recognizer := whisperx.NewService(whisperx.Config{
				Model:       model,
				CUDAEnabled: cfg.Transcription.WhisperXCUDAEnabled || flags.cuda,
			})

			var translator transcribe.Translator
			switch {
			case flags.noTranslate:
			case cfg.GetLLM().APIKey == "":
				logging.WarnWithContext(env.logger, "translation disabled: no LLM api key", "translation_disabled",
					logging.String(logging.FieldErrorHint, "set llm.api_key or SUBVOICE_LLM_API_KEY"),
					logging.String(logging.FieldImpact, "subtitles are written in the detected language"),
				)
			default:
				client := llm.NewClient(llmConfig(ctx))
				translator = translate.New(client, translate.OptionsFromConfig(cfg), env.logger)
			}

			stderr := cmd.ErrOrStderr()
			sinks := []events.Sink{events.NewLogSink(env.logger), env.alerts}
			var progress *progressLine
			if !flags.json && isTerminal(stderr) {
				progress = newProgressLine(stderr)
				sinks = append(sinks, progress)
			}

			pipeline, err := transcribe.New(transcribe.Options{
				TargetLanguage: target,
				SourceLanguage: flags.source,
				OutputDir:      outputDir,
			}, transcribe.Deps{
				Media:      extractor,
				Recognizer: recognizer,
				Translator: translator,
				Workspace:  env.ws,
				History:    env.store,
				Sink:       events.Tee(sinks...),
				Logger:     env.logger,
			})
			if err != nil {
				return err
			}

			runCtx, stop := watchSignals(cmd.Context(), nil, stderr)
			summary, err := pipeline.Run(runCtx, files)
			stop()
			if progress != nil {
				progress.finish()
			}
			if err != nil {
				return err
			}
			env.notifyRun(cmd.Context(), notifications.RunSummary{
				Direction: "transcribe",
				Status:    string(summary.Status),
				Completed: summary.Completed,
				Total:     len(summary.Files),
				Duration:  summary.Elapsed,
			})

			if flags.json {
				if err := writeJSON(cmd, transcribeJSON(summary, env.logPath)); err != nil {
					return err
				}
			} else {
				printTranscribeSummary(cmd.OutOrStdout(), summary, env.logPath)
			}
			return transcribeOutcome(summary, len(files))
		},
	}

	cmd.Flags().StringVarP(&flags.target, "target", "t", "", "Subtitle language (default: transcription.target_language)")
	cmd.Flags().StringVarP(&flags.source, "source", "s", "", "Spoken language; skips detection when set")
	cmd.Flags().StringVarP(&flags.outputDir, "output-dir", "o", "", "Directory for subtitles (default: beside each input)")
	cmd.Flags().StringVar(&flags.model, "model", "", "Override transcription.whisperx_model")
	cmd.Flags().BoolVar(&flags.cuda, "cuda", false, "Run WhisperX on the GPU")
	cmd.Flags().BoolVar(&flags.noTranslate, "no-translate", false, "Keep subtitles in the detected language")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the run summary as JSON")
	return cmd
}

type transcribeSummaryJSON struct {
	transcribe.Summary
	LogPath string            `json:"log_path,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func transcribeJSON(summary transcribe.Summary, logPath string) transcribeSummaryJSON {
	out := transcribeSummaryJSON{Summary: summary, LogPath: logPath}
	for _, file := range summary.Files {
		if file.Err == nil {
			continue
		}
		if out.Errors == nil {
			out.Errors = make(map[string]string)
		}
		out.Errors[file.Source] = file.Err.Error()
	}
	return out
}

func printTranscribeSummary(out io.Writer, summary transcribe.Summary, logPath string) {
	rows := make([][]string, 0, len(summary.Files))
	for _, file := range summary.Files {
		detail := file.Output
		if file.Err != nil {
			detail = file.Err.Error()
		}
		lang := language.DisplayName(file.Language)
		if file.Translated {
			lang += " -> " + language.DisplayName(file.Target)
		}
		rows = append(rows, []string{
			filepath.Base(file.Source),
			lang,
			strconv.Itoa(file.Segments),
			detail,
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(
			[]string{"File", "Language", "Segments", "Output"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
		))
	}
	fmt.Fprintf(out, "Run %s %s: %d of %d files transcribed in %s\n",
		summary.RunID, summary.Status, summary.Completed, len(summary.Files), formatElapsed(summary.Elapsed))
	if logPath != "" {
		fmt.Fprintf(out, "Run log: %s\n", logPath)
	}
}

func transcribeOutcome(summary transcribe.Summary, total int) error {
	switch summary.Status {
	case history.RunCancelled:
		return context.Canceled
	case history.RunPartial:
		return fmt.Errorf("%d of %d files were not transcribed", total-summary.Completed, total)
	default:
		return nil
	}
}
