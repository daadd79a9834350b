package assembly

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"subvoice/internal/services"
)

const (
	// SampleRate of the assembled timeline.
	SampleRate = 24000
	// SamplesPerMs is exact at SampleRate.
	SamplesPerMs = SampleRate / 1000
	bitDepth     = 16
	pcmFormat    = 1

	// MP3Bitrate is the constant bitrate of exported tracks.
	MP3Bitrate = "192k"
)

// Codec moves audio between files and the mono PCM timeline.
type Codec interface {
	// Decode returns the clip at path as mono samples at SampleRate.
	Decode(ctx context.Context, path string) ([]int, error)
	// Encode writes samples to output.
	Encode(ctx context.Context, samples []int, output string) error
}

// WAVCodec reads and writes PCM WAV files with go-audio.
type WAVCodec struct{}

// Decode reads a PCM WAV file, downmixing and resampling to the timeline
// format when needed.
func (WAVCodec) Decode(_ context.Context, path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	channels := 1
	rate := SampleRate
	if buf.Format != nil {
		channels = max(buf.Format.NumChannels, 1)
		rate = buf.Format.SampleRate
	}
	samples := downmix(buf.Data, channels)
	samples = rescaleDepth(samples, buf.SourceBitDepth)
	if rate > 0 && rate != SampleRate {
		samples = resample(samples, rate, SampleRate)
	}
	return samples, nil
}

// Encode writes samples as 16-bit mono WAV.
func (WAVCodec) Encode(_ context.Context, samples []int, output string) error {
	if dir := filepath.Dir(output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure output dir: %w", err)
		}
	}
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, SampleRate, bitDepth, 1, pcmFormat)
	writeErr := enc.Write(&audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: SampleRate, NumChannels: 1},
		SourceBitDepth: bitDepth,
	})
	closeErr := enc.Close()
	fileErr := f.Close()
	return errors.Join(writeErr, closeErr, fileErr)
}

func downmix(data []int, channels int) []int {
	if channels <= 1 {
		return data
	}
	frames := len(data) / channels
	out := make([]int, frames)
	for i := range frames {
		sum := 0
		for c := range channels {
			sum += data[i*channels+c]
		}
		out[i] = sum / channels
	}
	return out
}

func rescaleDepth(data []int, depth int) []int {
	switch {
	case depth == 0 || depth == bitDepth:
		return data
	case depth > bitDepth:
		shift := uint(depth - bitDepth)
		for i, v := range data {
			data[i] = v >> shift
		}
	default:
		shift := uint(bitDepth - depth)
		for i, v := range data {
			// 8-bit wav is unsigned
			if depth == 8 {
				v -= 128
			}
			data[i] = v << shift
		}
	}
	return data
}

// resample uses nearest-neighbour selection; clips arrive from ffmpeg already
// at SampleRate, so this only serves hand-made WAV inputs.
func resample(data []int, from, to int) []int {
	n := int(int64(len(data)) * int64(to) / int64(from))
	out := make([]int, n)
	for i := range out {
		src := int(int64(i) * int64(from) / int64(to))
		if src >= len(data) {
			src = len(data) - 1
		}
		out[i] = data[src]
	}
	return out
}

// CommandRunner executes name with args and returns combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// FFmpegCodec decodes any clip ffmpeg understands and encodes MP3 output with
// libmp3lame. Outputs ending in .wav skip ffmpeg entirely.
type FFmpegCodec struct {
	binary  string
	tempDir string
	runner  CommandRunner
	wav     WAVCodec
}

// NewFFmpegCodec returns a codec running binary (ffmpeg when empty), staging
// intermediate WAV files under tempDir (os.TempDir when empty).
func NewFFmpegCodec(binary, tempDir string) *FFmpegCodec {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpegCodec{binary: binary, tempDir: tempDir}
}

// WithCommandRunner sets a custom command runner (for testing).
func (c *FFmpegCodec) WithCommandRunner(runner CommandRunner) {
	c.runner = runner
}

func (c *FFmpegCodec) run(ctx context.Context, args ...string) error {
	var (
		output []byte
		err    error
	)
	if c.runner != nil {
		output, err = c.runner(ctx, c.binary, args...)
	} else {
		output, err = exec.CommandContext(ctx, c.binary, args...).CombinedOutput() //nolint:gosec
	}
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return services.Wrap(services.ErrConfiguration, "assembly", "ffmpeg", "ffmpeg not runnable", err)
	}
	return services.Wrap(services.ErrExternalTool, "assembly", "ffmpeg", lastLine(string(output)), err)
}

// Decode converts path to a temporary mono WAV at SampleRate and reads it.
func (c *FFmpegCodec) Decode(ctx context.Context, path string) ([]int, error) {
	tmp, err := os.CreateTemp(c.tempDir, "clip-*.wav")
	if err != nil {
		return nil, fmt.Errorf("stage clip: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	if err := c.run(ctx, DecodeArgs(path, tmpPath)...); err != nil {
		return nil, err
	}
	return c.wav.Decode(ctx, tmpPath)
}

// Encode writes samples to output, as MP3 unless output ends in .wav.
func (c *FFmpegCodec) Encode(ctx context.Context, samples []int, output string) error {
	if strings.EqualFold(filepath.Ext(output), ".wav") {
		return c.wav.Encode(ctx, samples, output)
	}
	tmp, err := os.CreateTemp(c.tempDir, "timeline-*.wav")
	if err != nil {
		return fmt.Errorf("stage timeline: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	if err := c.wav.Encode(ctx, samples, tmpPath); err != nil {
		return err
	}
	if dir := filepath.Dir(output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure output dir: %w", err)
		}
	}
	return c.run(ctx, EncodeArgs(tmpPath, output)...)
}

// DecodeArgs are the ffmpeg arguments converting input to timeline WAV.
func DecodeArgs(input, output string) []string {
	return []string{
		"-hide_banner", "-v", "error", "-y",
		"-i", input,
		"-vn", "-c:a", "pcm_s16le", "-ac", "1", "-ar", fmt.Sprint(SampleRate),
		output,
	}
}

// EncodeArgs are the ffmpeg arguments encoding a WAV timeline to MP3.
func EncodeArgs(input, output string) []string {
	return []string{
		"-hide_banner", "-v", "error", "-y",
		"-i", input,
		"-c:a", "libmp3lame", "-b:a", MP3Bitrate, "-q:a", "0",
		output,
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	if s == "" {
		return "ffmpeg failed"
	}
	return s
}
