package assembly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"subvoice/internal/logging"
	"subvoice/internal/subtitles"
)

// ErrAssembly marks a failure to export the final track.
// Artifacts are left in place when it is returned.
var ErrAssembly = errors.New("assembly failed")

// Report summarises one assembled track.
type Report struct {
	Output    string `json:"output"`
	TotalMs   int64  `json:"total_ms"`
	SilenceMs int64  `json:"silence_ms"`
	Truncated []int  `json:"truncated,omitempty"`
	Padded    []int  `json:"padded,omitempty"`
	Missing   []int  `json:"missing,omitempty"`
}

// Assembler lays clips onto the subtitle timeline and exports the result.
type Assembler struct {
	codec   Codec
	logger  *slog.Logger
	cleanup bool
}

// NewAssembler returns an assembler that deletes artifacts after a
// successful export.
func NewAssembler(codec Codec, logger *slog.Logger) *Assembler {
	if codec == nil {
		codec = WAVCodec{}
	}
	return &Assembler{codec: codec, logger: logging.NewComponentLogger(logger, "assembly"), cleanup: true}
}

// KeepArtifacts disables post-export cleanup.
func (a *Assembler) KeepArtifacts() *Assembler {
	a.cleanup = false
	return a
}

// Assemble builds output from segments and the clips in artifacts, keyed by
// segment index. A segment whose clip is missing or cannot be decoded becomes
// silence of its own length.
func (a *Assembler) Assemble(ctx context.Context, segments []subtitles.Segment, artifacts map[int]string, output string) (Report, error) {
	report := Report{Output: output}
	logger := a.logger.With(logging.String("output", output))

	ordered := slices.Clone(segments)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var timeline []int
	var cursor int64
	for _, seg := range ordered {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		start, end := seg.Start.Milliseconds(), seg.End.Milliseconds()
		if start > cursor {
			timeline = appendSilence(timeline, start-cursor)
			report.SilenceMs += start - cursor
		}
		want := max(end-start, 0)

		var clip []int
		path, ok := artifacts[seg.Index]
		if ok && !fileExists(path) {
			ok = false
		}
		if ok {
			decoded, err := a.codec.Decode(ctx, path)
			switch {
			case err == nil:
				clip = decoded
			case ctx.Err() != nil:
				return report, ctx.Err()
			default:
				ok = false
				logging.WarnWithContext(logger, "clip could not be decoded; using silence", "clip_unreadable",
					logging.Segment(seg.Index),
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "rerun with --no-resume to synthesize the segment again"),
					logging.String(logging.FieldImpact, "the track is silent where this subtitle appears"),
				)
			}
		}
		if !ok {
			timeline = appendSilence(timeline, want)
			report.SilenceMs += want
			report.Missing = append(report.Missing, seg.Index)
			cursor = end
			continue
		}

		wantSamples := int(want * SamplesPerMs)
		switch {
		case len(clip) > wantSamples:
			clip = clip[:wantSamples]
			report.Truncated = append(report.Truncated, seg.Index)
		case len(clip) < wantSamples:
			padMs := int64(wantSamples-len(clip)) / SamplesPerMs
			report.SilenceMs += padMs
			clip = append(clip, make([]int, wantSamples-len(clip))...)
			report.Padded = append(report.Padded, seg.Index)
		}
		timeline = append(timeline, clip...)
		cursor = end
	}
	report.TotalMs = int64(len(timeline)) / SamplesPerMs

	if err := a.codec.Encode(ctx, timeline, output); err != nil {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		return report, fmt.Errorf("%w: export %s: %w", ErrAssembly, filepath.Base(output), err)
	}

	logger.Info("audio track assembled",
		logging.String(logging.FieldEventType, "assembly_complete"),
		logging.Int64("total_ms", report.TotalMs),
		logging.Int64("silence_ms", report.SilenceMs),
		logging.Int("missing", len(report.Missing)),
		logging.Int("truncated", len(report.Truncated)),
		logging.Int("padded", len(report.Padded)),
	)
	if len(report.Missing) > 0 {
		logging.WarnWithContext(logger, "segments without audio were replaced by silence", "segments_missing",
			logging.Any("segments", report.Missing),
			logging.String(logging.FieldImpact, "the track is silent where those subtitles appear"),
		)
	}
	if a.cleanup {
		a.removeArtifacts(artifacts, logger)
	}
	return report, nil
}

// removeArtifacts deletes clips and then any directories they leave empty.
// Failures are logged and ignored.
func (a *Assembler) removeArtifacts(artifacts map[int]string, logger *slog.Logger) {
	dirs := make(map[string]struct{})
	for _, path := range artifacts {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Debug("artifact cleanup failed", logging.String("path", path), logging.Error(err))
		}
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			logger.Debug("artifact dir cleanup failed", logging.String("path", dir), logging.Error(err))
		}
	}
}

func appendSilence(timeline []int, ms int64) []int {
	if ms <= 0 {
		return timeline
	}
	return append(timeline, make([]int, ms*SamplesPerMs)...)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
