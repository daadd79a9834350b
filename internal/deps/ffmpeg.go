package deps

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// MP3Encoder is the ffmpeg encoder the assembled track needs.
const MP3Encoder = "libmp3lame"

// Runner executes a command and returns its output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output() //nolint:gosec
}

// CheckFFmpegEncoder reports whether ffmpeg was built with encoder. A nil
// runner executes ffmpeg.
func CheckFFmpegEncoder(ctx context.Context, binary, encoder string, run Runner) Status {
	result := Status{
		Name:        "FFmpeg " + encoder,
		Command:     binary,
		Description: "Encoder for the final audio track",
	}
	if run == nil {
		run = execRunner
	}
	output, err := run(ctx, binary, "-hide_banner", "-encoders")
	if err != nil {
		result.Detail = fmt.Sprintf("list encoders: %v", err)
		return result
	}
	if hasEncoder(string(output), encoder) {
		result.Available = true
		return result
	}
	result.Detail = fmt.Sprintf("ffmpeg lacks the %s encoder; install a build with LAME support", encoder)
	return result
}

// hasEncoder scans `ffmpeg -encoders` output, whose rows look like
// " A....D libmp3lame           libmp3lame MP3 (MPEG audio layer 3)".
func hasEncoder(output, encoder string) bool {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == encoder {
			return true
		}
	}
	return false
}
