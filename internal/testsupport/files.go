package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"subvoice/internal/assembly"
	"subvoice/internal/subtitles"
)

// WriteSRT renders segments as an SRT file at path.
func WriteSRT(t testing.TB, path string, segments ...subtitles.Segment) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(subtitles.Format(segments)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Segment builds a segment from millisecond bounds.
func Segment(index int, startMs, endMs int64, text string) subtitles.Segment {
	return subtitles.Segment{Index: index, Start: subtitles.Timestamp(startMs), End: subtitles.Timestamp(endMs), Text: text}
}

// WriteTone writes a WAV clip of ms milliseconds at the assembly sample rate
// with every sample set to value.
func WriteTone(t testing.TB, path string, ms int, value int) {
	t.Helper()
	if err := WriteToneFile(path, ms, value); err != nil {
		t.Fatalf("write tone %s: %v", path, err)
	}
}

// WriteToneFile is WriteTone for callers without a testing.TB, such as fake
// synthesis backends running on worker goroutines.
func WriteToneFile(path string, ms int, value int) error {
	samples := make([]int, ms*assembly.SamplesPerMs)
	for i := range samples {
		samples[i] = value
	}
	return (assembly.WAVCodec{}).Encode(context.Background(), samples, path)
}

// ToneMillis maps segment text like "tone:1500" to a clip length; other text
// yields fallback.
func ToneMillis(text string, fallback int) int {
	rest, ok := strings.CutPrefix(text, "tone:")
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
