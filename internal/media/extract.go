package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"subvoice/internal/logging"
	"subvoice/internal/media/ffprobe"
	"subvoice/internal/services"
)

var (
	// VideoExtensions are containers whose audio is extracted first.
	VideoExtensions = []string{".mp4", ".mkv", ".avi", ".mov"}
	// AudioExtensions are passed to the recognizer as they are.
	AudioExtensions = []string{".mp3", ".wav", ".m4a", ".flac", ".ogg", ".aac", ".opus"}
)

// ErrNoAudio means the input has no audio stream to transcribe.
var ErrNoAudio = errors.New("no audio stream")

// IsVideo reports whether path has a video container extension.
func IsVideo(path string) bool {
	return slices.Contains(VideoExtensions, strings.ToLower(filepath.Ext(path)))
}

// IsSupported reports whether path can be transcribed.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.Contains(VideoExtensions, ext) || slices.Contains(AudioExtensions, ext)
}

// Source describes a probed input.
type Source struct {
	Path        string
	Video       bool
	StreamIndex int
	// Language is the stream's tagged language (ISO 639-1), often empty.
	Language string
	Duration time.Duration
}

// CommandRunner executes ffmpeg and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Extractor probes inputs and pulls their audio out.
type Extractor struct {
	ffmpeg string
	prober *ffprobe.Prober
	runner CommandRunner
	logger *slog.Logger
}

// NewExtractor wires an extractor. ffmpegBinary defaults to "ffmpeg".
func NewExtractor(ffmpegBinary string, prober *ffprobe.Prober, logger *slog.Logger) *Extractor {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if prober == nil {
		prober = ffprobe.NewProber("")
	}
	return &Extractor{
		ffmpeg: ffmpegBinary,
		prober: prober,
		logger: logging.NewComponentLogger(logger, "media"),
	}
}

// WithCommandRunner replaces ffmpeg execution (for tests).
func (e *Extractor) WithCommandRunner(runner CommandRunner) {
	e.runner = runner
}

// Probe inspects path and selects the audio stream to transcribe.
func (e *Extractor) Probe(ctx context.Context, path string) (Source, error) {
	if _, err := os.Stat(path); err != nil {
		return Source{}, services.Wrap(services.ErrNotFound, "media", "probe", path, err)
	}
	if !IsSupported(path) {
		return Source{}, services.Wrap(services.ErrValidation, "media", "probe", "unsupported file type "+filepath.Ext(path), nil)
	}
	result, err := e.prober.Inspect(ctx, path)
	if err != nil {
		return Source{}, err
	}
	stream, ok := result.PrimaryAudio()
	if !ok {
		return Source{}, services.Wrap(services.ErrValidation, "media", "probe", filepath.Base(path), ErrNoAudio)
	}
	src := Source{
		Path:        path,
		Video:       IsVideo(path),
		StreamIndex: stream.Index,
		Language:    stream.Language(),
		Duration:    result.Duration(),
	}
	e.logger.Debug("media probed",
		logging.String("path", path),
		logging.Bool("video", src.Video),
		logging.Int("audio_stream", src.StreamIndex),
		logging.String("language", src.Language),
		logging.Duration("duration", src.Duration),
	)
	return src, nil
}

// Prepare returns a path the recognizer can read: the input itself for
// audio files, or a WAV extracted into workDir for video.
func (e *Extractor) Prepare(ctx context.Context, src Source, workDir string) (string, error) {
	if !src.Video {
		return src.Path, nil
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("prepare audio: ensure work dir: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(src.Path), filepath.Ext(src.Path))
	dest := filepath.Join(workDir, stem+".wav")
	if err := e.ExtractAudio(ctx, src.Path, src.StreamIndex, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// ExtractAudio writes stream audioIndex of source to dest as mono 16 kHz WAV.
func (e *Extractor) ExtractAudio(ctx context.Context, source string, audioIndex int, dest string) error {
	if audioIndex < 0 {
		return fmt.Errorf("extract audio: invalid audio track index %d", audioIndex)
	}
	started := time.Now()
	args := ExtractArgs(source, audioIndex, dest)
	var output []byte
	var err error
	if e.runner != nil {
		output, err = e.runner(ctx, e.ffmpeg, args...)
	} else {
		output, err = exec.CommandContext(ctx, e.ffmpeg, args...).CombinedOutput() //nolint:gosec
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "extract audio", strings.TrimSpace(string(output)), err)
	}
	e.logger.Info("audio extracted",
		logging.String(logging.FieldEventType, "audio_extracted"),
		logging.String("source", source),
		logging.String("dest", dest),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	)
	return nil
}

// ExtractArgs builds the ffmpeg arguments for ExtractAudio.
func ExtractArgs(source string, audioIndex int, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", fmt.Sprintf("0:%d", audioIndex),
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
}
