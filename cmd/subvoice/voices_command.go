package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"subvoice/internal/tts"
)

func newVoicesCommand(ctx *commandContext) *cobra.Command {
	var locale string
	var refresh bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List available synthesis voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			ttl := time.Duration(cfg.TTS.CatalogTTLHours) * time.Hour
			catalog := tts.NewCatalog(cfg.VoiceCatalogPath(), ttl, tts.NewEdgeBackend(cfg.TTSBinary()), logger)

			var voices []tts.Voice
			var source tts.CatalogSource
			if refresh {
				voices, source = catalog.Refresh(cmd.Context())
			} else {
				voices, source = catalog.Voices(cmd.Context())
			}
			if prefix := strings.TrimSpace(locale); prefix != "" {
				voices = tts.FilterByLocale(voices, prefix)
			}

			if asJSON {
				return writeJSON(cmd, map[string]any{
					"source":     source,
					"configured": cfg.Voice.Name,
					"voices":     voices,
				})
			}

			out := cmd.OutOrStdout()
			if len(voices) == 0 {
				fmt.Fprintln(out, "No voices match")
				return nil
			}
			rows := make([][]string, 0, len(voices))
			for _, v := range voices {
				marker := ""
				if strings.EqualFold(v.Name, cfg.Voice.Name) {
					marker = "*"
				}
				rows = append(rows, []string{marker, v.Name, v.Locale, v.Gender})
			}
			fmt.Fprintln(out, renderTable([]string{"", "Voice", "Locale", "Gender"}, rows, nil))
			fmt.Fprintf(out, "%d voices (source: %s)\n", len(voices), source)
			if source == tts.SourceFallback {
				fmt.Fprintln(out, "The voice list could not be fetched; only the default voice is shown.")
			}
			if !tts.Contains(voices, cfg.Voice.Name) && strings.TrimSpace(locale) == "" {
				fmt.Fprintf(out, "Configured voice %s is not in the list.\n", cfg.Voice.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&locale, "locale", "l", "", "Only show voices whose locale starts with this prefix (e.g. en, de-DE)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Ignore the cached list and fetch it again")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
