package assembly_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"subvoice/internal/assembly"
	"subvoice/internal/logging"
	"subvoice/internal/subtitles"
)

// writeClip writes a constant-valued clip of ms milliseconds.
func writeClip(t *testing.T, dir string, index int, ms int, value int) string {
	t.Helper()
	samples := make([]int, ms*assembly.SamplesPerMs)
	for i := range samples {
		samples[i] = value
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.wav", index))
	if err := (assembly.WAVCodec{}).Encode(context.Background(), samples, path); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	return path
}

func decode(t *testing.T, path string) []int {
	t.Helper()
	samples, err := (assembly.WAVCodec{}).Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return samples
}

func seg(index int, startMs, endMs int64) subtitles.Segment {
	return subtitles.Segment{Index: index, Start: subtitles.Timestamp(startMs), End: subtitles.Timestamp(endMs), Text: "x"}
}

func allEqual(samples []int, value int) bool {
	for _, s := range samples {
		if s != value {
			return false
		}
	}
	return true
}

func TestAssembleRoundTripDuration(t *testing.T) {
	dir := t.TempDir()
	segments := []subtitles.Segment{seg(1, 0, 1000), seg(2, 1500, 2000), seg(3, 2000, 3250)}
	artifacts := map[int]string{
		1: writeClip(t, dir, 1, 1000, 100),
		2: writeClip(t, dir, 2, 500, 200),
		3: writeClip(t, dir, 3, 1250, 300),
	}
	out := filepath.Join(t.TempDir(), "track.wav")

	report, err := assembly.NewAssembler(assembly.WAVCodec{}, logging.NewNop()).Assemble(context.Background(), segments, artifacts, out)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if report.TotalMs != 3250 || report.SilenceMs != 500 {
		t.Fatalf("unexpected report %+v", report)
	}
	samples := decode(t, out)
	if len(samples) != 3250*assembly.SamplesPerMs {
		t.Fatalf("expected %d samples, got %d", 3250*assembly.SamplesPerMs, len(samples))
	}
	if !allEqual(samples[1000*assembly.SamplesPerMs:1500*assembly.SamplesPerMs], 0) {
		t.Fatal("expected silence in the gap")
	}
	if !allEqual(samples[2000*assembly.SamplesPerMs:], 300) {
		t.Fatal("expected third clip at its start time")
	}
}

func TestAssemblePadsAndTruncates(t *testing.T) {
	tests := []struct {
		name      string
		clipMs    int
		padded    bool
		truncated bool
	}{
		{name: "short clip padded", clipMs: 1500, padded: true},
		{name: "long clip truncated", clipMs: 2600, truncated: true},
		{name: "exact clip untouched", clipMs: 2000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			artifacts := map[int]string{1: writeClip(t, dir, 1, tt.clipMs, 500)}
			out := filepath.Join(t.TempDir(), "track.wav")

			report, err := assembly.NewAssembler(nil, logging.NewNop()).Assemble(context.Background(), []subtitles.Segment{seg(1, 1000, 3000)}, artifacts, out)
			if err != nil {
				t.Fatalf("assemble: %v", err)
			}
			samples := decode(t, out)
			if len(samples) != 3000*assembly.SamplesPerMs {
				t.Fatalf("expected 3000ms track, got %d samples", len(samples))
			}
			voiced := min(tt.clipMs, 2000)
			clipEnd := (1000 + voiced) * assembly.SamplesPerMs
			if !allEqual(samples[1000*assembly.SamplesPerMs:clipEnd], 500) {
				t.Fatal("clip not placed at segment start")
			}
			if !allEqual(samples[clipEnd:], 0) {
				t.Fatal("expected trailing silence after the clip")
			}
			if tt.padded {
				if !slices.Equal(report.Padded, []int{1}) || report.SilenceMs != 1500 {
					t.Fatalf("expected 500ms padding, got %+v", report)
				}
			}
			if tt.truncated && !slices.Equal(report.Truncated, []int{1}) {
				t.Fatalf("expected truncation, got %+v", report)
			}
		})
	}
}

func TestAssembleMissingArtifactBecomesSilence(t *testing.T) {
	dir := t.TempDir()
	segments := []subtitles.Segment{seg(1, 0, 1000), seg(2, 1000, 1800), seg(3, 2000, 2500)}
	artifacts := map[int]string{
		1: writeClip(t, dir, 1, 1000, 100),
		2: filepath.Join(dir, "gone.wav"),
		3: writeClip(t, dir, 3, 500, 300),
	}
	out := filepath.Join(t.TempDir(), "track.wav")

	report, err := assembly.NewAssembler(nil, logging.NewNop()).Assemble(context.Background(), segments, artifacts, out)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !slices.Equal(report.Missing, []int{2}) || report.TotalMs != 2500 || report.SilenceMs != 1000 {
		t.Fatalf("unexpected report %+v", report)
	}
	samples := decode(t, out)
	if !allEqual(samples[1000*assembly.SamplesPerMs:2000*assembly.SamplesPerMs], 0) {
		t.Fatal("missing segment should be silent")
	}
}

func TestAssembleUndecodableClipBecomesSilence(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "2.wav")
	if err := os.WriteFile(broken, []byte("not audio"), 0o644); err != nil {
		t.Fatalf("write broken clip: %v", err)
	}
	segments := []subtitles.Segment{seg(1, 0, 1000), seg(2, 1000, 1500)}
	artifacts := map[int]string{
		1: writeClip(t, dir, 1, 1000, 100),
		2: broken,
	}
	out := filepath.Join(t.TempDir(), "track.wav")

	report, err := assembly.NewAssembler(nil, logging.NewNop()).KeepArtifacts().Assemble(context.Background(), segments, artifacts, out)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !slices.Equal(report.Missing, []int{2}) || report.TotalMs != 1500 || report.SilenceMs != 500 {
		t.Fatalf("unexpected report %+v", report)
	}
	samples := decode(t, out)
	if !allEqual(samples[:1000*assembly.SamplesPerMs], 100) || !allEqual(samples[1000*assembly.SamplesPerMs:], 0) {
		t.Fatal("undecodable clip should be replaced by silence")
	}
}

func TestAssembleRemovesArtifactsAfterExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "job")
	artifacts := map[int]string{1: writeClip(t, dir, 1, 200, 1)}
	out := filepath.Join(t.TempDir(), "track.wav")

	if _, err := assembly.NewAssembler(nil, logging.NewNop()).Assemble(context.Background(), []subtitles.Segment{seg(1, 0, 200)}, artifacts, out); err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected artifact dir removed, stat err=%v", err)
	}
}

type failingCodec struct{ assembly.WAVCodec }

func (failingCodec) Encode(context.Context, []int, string) error { return errors.New("disk full") }

func TestAssembleExportFailureKeepsArtifacts(t *testing.T) {
	dir := t.TempDir()
	artifacts := map[int]string{1: writeClip(t, dir, 1, 200, 1)}

	_, err := assembly.NewAssembler(failingCodec{}, logging.NewNop()).Assemble(context.Background(), []subtitles.Segment{seg(1, 0, 200)}, artifacts, filepath.Join(dir, "out.mp3"))
	if !errors.Is(err, assembly.ErrAssembly) {
		t.Fatalf("expected ErrAssembly, got %v", err)
	}
	if _, err := os.Stat(artifacts[1]); err != nil {
		t.Fatalf("artifact should survive a failed export: %v", err)
	}
}

func TestWAVDecodeDownmixesAndResamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	writeStereo48k(t, path, 480)
	samples := decode(t, path)
	if len(samples) != 240 {
		t.Fatalf("expected 10ms at 24kHz, got %d samples", len(samples))
	}
	if !allEqual(samples, 150) {
		t.Fatalf("expected downmixed value 150, got %v", samples[:4])
	}
}

func TestFFmpegCodecArguments(t *testing.T) {
	var calls [][]string
	codec := assembly.NewFFmpegCodec("", t.TempDir())
	codec.WithCommandRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		return nil, nil
	})
	out := filepath.Join(t.TempDir(), "a_audio.mp3")
	if err := codec.Encode(context.Background(), make([]int, 24), out); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(calls) != 1 || calls[0][0] != "ffmpeg" {
		t.Fatalf("unexpected calls %v", calls)
	}
	joined := strings.Join(calls[0], " ")
	for _, want := range []string{"-c:a libmp3lame", "-b:a 192k", "-q:a 0", out} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %q", want, joined)
		}
	}

	calls = nil
	wavOut := filepath.Join(t.TempDir(), "a_audio.wav")
	if err := codec.Encode(context.Background(), make([]int, 24), wavOut); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("wav output should not invoke ffmpeg: %v", calls)
	}
}

func TestFFmpegCodecReportsToolFailure(t *testing.T) {
	codec := assembly.NewFFmpegCodec("ffmpeg", t.TempDir())
	codec.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Invalid data found when processing input"), errors.New("exit status 1")
	})
	_, err := codec.Decode(context.Background(), "clip.mp3")
	if err == nil || !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected tool output in error, got %v", err)
	}
}
