package tts

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"subvoice/internal/services"
)

// EdgeCommand is the default synthesis CLI.
const EdgeCommand = "edge-tts"

// CommandRunner executes name with args and returns combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// EdgeBackend synthesizes speech by running the edge-tts command line tool.
type EdgeBackend struct {
	binary string
	runner CommandRunner
}

// NewEdgeBackend returns a backend that runs binary (edge-tts when empty).
func NewEdgeBackend(binary string) *EdgeBackend {
	if strings.TrimSpace(binary) == "" {
		binary = EdgeCommand
	}
	return &EdgeBackend{binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (b *EdgeBackend) WithCommandRunner(runner CommandRunner) {
	b.runner = runner
}

// Binary returns the configured executable.
func (b *EdgeBackend) Binary() string { return b.binary }

func (b *EdgeBackend) run(ctx context.Context, args ...string) ([]byte, error) {
	if b.runner != nil {
		return b.runner(ctx, b.binary, args...)
	}
	cmd := exec.CommandContext(ctx, b.binary, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// Synthesize runs one edge-tts invocation. Prosody flags use the --flag=value
// form so negative adjustments are not mistaken for options.
func (b *EdgeBackend) Synthesize(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return services.Wrap(services.ErrValidation, "tts", "synthesize", "empty text", nil)
	}
	if dir := filepath.Dir(req.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure artifact dir: %w", err)
		}
	}
	args := BuildEdgeArgs(req)
	output, err := b.run(ctx, args...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := strings.TrimSpace(string(output))
		if matchesConnectivity(detail) {
			return fmt.Errorf("%w: %s", ErrConnectivity, lastLine(detail))
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return services.Wrap(services.ErrConfiguration, "tts", "synthesize", "edge-tts not runnable", err)
		}
		return services.Wrap(services.ErrExternalTool, "tts", "synthesize", lastLine(detail), err)
	}
	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "tts", "synthesize", "no audio written", err)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, "tts", "synthesize", "empty audio written", nil)
	}
	return nil
}

// BuildEdgeArgs constructs the edge-tts arguments for req. Values that may
// begin with a dash ("-No.") are attached with "=" so argparse does not read
// them as options.
func BuildEdgeArgs(req Request) []string {
	return []string{
		"--voice", req.Voice.Voice,
		"--rate=" + req.Voice.RateArg(),
		"--volume=" + req.Voice.VolumeArg(),
		"--pitch=" + req.Voice.PitchArg(),
		"--text=" + req.Text,
		"--write-media", req.OutputPath,
	}
}

// ListVoices runs edge-tts --list-voices and parses the result.
func (b *EdgeBackend) ListVoices(ctx context.Context) ([]Voice, error) {
	output, err := b.run(ctx, "--list-voices")
	if err != nil {
		return nil, fmt.Errorf("list voices: %w: %s", err, lastLine(strings.TrimSpace(string(output))))
	}
	voices := ParseVoiceList(string(output))
	if len(voices) == 0 {
		return nil, errors.New("list voices: no voices in output")
	}
	return voices, nil
}

// ParseVoiceList understands both the "Name: xx-YY-Voice" blocks printed by
// older edge-tts releases and the tabular layout of newer ones.
func ParseVoiceList(output string) []Voice {
	var voices []Voice
	seen := make(map[string]struct{})
	add := func(name, gender string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		voices = append(voices, Voice{Name: name, Gender: strings.TrimSpace(gender), Locale: localeOf(name)})
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	inTable := false
	var pendingName string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			if pendingName != "" {
				add(pendingName, "")
				pendingName = ""
			}
		case strings.HasPrefix(line, "Name:"):
			if pendingName != "" {
				add(pendingName, "")
			}
			pendingName = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
		case strings.HasPrefix(line, "Gender:") && pendingName != "":
			add(pendingName, strings.TrimPrefix(line, "Gender:"))
			pendingName = ""
		case strings.HasPrefix(line, "---"):
			inTable = true
		case inTable:
			fields := strings.Fields(line)
			gender := ""
			if len(fields) > 1 {
				gender = fields[1]
			}
			add(fields[0], gender)
		}
	}
	if pendingName != "" {
		add(pendingName, "")
	}
	return voices
}

func localeOf(name string) string {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[0] + "-" + parts[1]
}

func lastLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.LastIndex(text, "\n"); idx >= 0 {
		return strings.TrimSpace(text[idx+1:])
	}
	return text
}
