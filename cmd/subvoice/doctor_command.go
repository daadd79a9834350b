package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"subvoice/internal/config"
	"subvoice/internal/deps"
	"subvoice/internal/preflight"
	"subvoice/internal/services/llm"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var checkLLM bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			for _, s := range statuses {
				if s.Command == cfg.FFmpegBinary() && s.Available {
					statuses = append(statuses, deps.CheckFFmpegEncoder(cmd.Context(), s.Path, deps.MP3Encoder, nil))
					break
				}
			}

			// With --check-llm the live request is reported among the checks.
			hasKey := cfg.GetLLM().APIKey != ""
			if !checkLLM || !hasKey {
				llmStatus := deps.Status{Name: "LLM", Command: cfg.LLM.Model, Description: "Translates transcribed subtitles", Optional: true}
				if hasKey {
					llmStatus.Available = true
					llmStatus.Detail = "api key set (use --check-llm to test it)"
				} else {
					llmStatus.Detail = "no api key; transcripts are not translated"
				}
				statuses = append(statuses, llmStatus)
			}

			checks := preflight.RunAll(cmd.Context(), cfg, preflight.Options{LLM: checkLLM})
			missing := deps.MissingRequired(statuses)
			failed := preflight.Failed(checks)
			if asJSON {
				if err := writeJSON(cmd, map[string]any{"dependencies": statuses, "missing": missing, "checks": checks}); err != nil {
					return err
				}
			} else {
				printDoctorReport(cmd.OutOrStdout(), cfg, statuses, checks)
			}
			if len(missing) > 0 {
				return fmt.Errorf("missing required dependencies: %s", strings.Join(missing, ", "))
			}
			if len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, r := range failed {
					names = append(names, r.Name)
				}
				return fmt.Errorf("failed checks: %s", strings.Join(names, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkLLM, "check-llm", false, "Send a test request to the translation API")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printDoctorReport(out io.Writer, cfg *config.Config, statuses []deps.Status, checks []preflight.Result) {
	colorize := isTerminal(out)
	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, s := range statuses {
		kind, message := statusOK, s.Path
		if s.Path == "" {
			message = s.Detail
		}
		if !s.Available {
			kind, message = statusError, s.Detail
			if s.Optional {
				kind = statusWarn
			}
		}
		fmt.Fprintln(out, renderStatusLine(s.Name, kind, message, colorize))
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Checks", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, r := range checks {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	logs := cfg.Paths.LogDir
	fmt.Fprintln(out, renderStatusLine("Logs", statusInfo, logs, colorize))
	if strings.TrimSpace(cfg.Paths.OutputDir) == "" {
		fmt.Fprintln(out, renderStatusLine("Output", statusInfo, "(beside each input)", colorize))
	}
	notify := "disabled"
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		notify = topic
	}
	fmt.Fprintln(out, renderStatusLine("Notifications", statusInfo, notify, colorize))
}

// llmConfig maps the loaded configuration onto the client settings.
func llmConfig(ctx *commandContext) llm.Config {
	cfg := ctx.configValue()
	if cfg == nil {
		return llm.Config{}
	}
	c := cfg.GetLLM()
	return llm.Config{
		APIKey:         c.APIKey,
		BaseURL:        c.BaseURL,
		Model:          c.Model,
		Referer:        c.Referer,
		Title:          c.Title,
		TimeoutSeconds: c.TimeoutSeconds,
	}
}
