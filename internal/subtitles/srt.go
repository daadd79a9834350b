package subtitles

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"subvoice/internal/fileutil"
	"subvoice/internal/logging"
)

// ErrParse reports that a subtitle file could not be read at all. Individual
// malformed blocks never produce it.
var ErrParse = errors.New("subtitle parse failed")

// Segment is one subtitle entry.
type Segment struct {
	Index int
	Start Timestamp
	End   Timestamp
	Text  string
}

// DurationMs returns End - Start in milliseconds.
func (s Segment) DurationMs() int64 {
	return int64(s.End - s.Start)
}

var blockSeparator = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)*`)

// ParseFile reads and parses an SRT file.
func ParseFile(path string, logger *slog.Logger) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrParse, path, err)
	}
	return Parse(data, logging.NewComponentLogger(logger, "subtitles").With(logging.File(path)))
}

// Parse decodes SRT content into segments ordered by index. Blocks with fewer
// than three lines are ignored; blocks with an invalid index, malformed timing,
// an end before the start or a repeated index are skipped with a warning.
func Parse(content []byte, logger *slog.Logger) ([]Segment, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	text, err := decode(content)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrParse, err)
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	blocks := blockSeparator.Split(text, -1)
	segments := make([]Segment, 0, len(blocks))
	seen := make(map[int]struct{}, len(blocks))
	skipped := 0
	for n, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 3 {
			continue
		}
		seg, err := parseBlock(lines)
		if err != nil {
			skipped++
			logging.WarnWithContext(logger, "skipping malformed subtitle block", "subtitle_block_skipped",
				logging.Int("block", n+1),
				logging.String("first_line", strings.TrimSpace(lines[0])),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix the block in the subtitle file and rerun"),
				logging.String(logging.FieldImpact, "segment will be missing from the audio"),
			)
			continue
		}
		if _, dup := seen[seg.Index]; dup {
			skipped++
			logging.WarnWithContext(logger, "skipping duplicate subtitle index", "subtitle_block_skipped",
				logging.Segment(seg.Index),
				logging.String(logging.FieldErrorHint, "renumber the subtitle file"),
				logging.String(logging.FieldImpact, "later block with the same index is ignored"),
			)
			continue
		}
		seen[seg.Index] = struct{}{}
		segments = append(segments, seg)
	}

	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Index < segments[j].Index })
	logger.Debug("subtitles parsed",
		logging.Int("segments", len(segments)),
		logging.Int("skipped", skipped),
	)
	return segments, nil
}

func parseBlock(lines []string) (Segment, error) {
	index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return Segment{}, fmt.Errorf("invalid index %q", strings.TrimSpace(lines[0]))
	}
	if index <= 0 {
		return Segment{}, fmt.Errorf("index %d must be positive", index)
	}
	startText, endText, ok := strings.Cut(lines[1], "-->")
	if !ok {
		return Segment{}, fmt.Errorf("invalid timing line %q", lines[1])
	}
	start, err := ParseTimestamp(startText)
	if err != nil {
		return Segment{}, err
	}
	// Some files carry positioning hints after the end time.
	endFields := strings.Fields(endText)
	if len(endFields) == 0 {
		return Segment{}, fmt.Errorf("invalid timing line %q", lines[1])
	}
	end, err := ParseTimestamp(endFields[0])
	if err != nil {
		return Segment{}, err
	}
	if start > end {
		return Segment{}, fmt.Errorf("start %s after end %s", start, end)
	}

	textLines := make([]string, 0, len(lines)-2)
	for _, line := range lines[2:] {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			textLines = append(textLines, trimmed)
		}
	}
	return Segment{
		Index: index,
		Start: start,
		End:   end,
		Text:  strings.Join(textLines, " "),
	}, nil
}

// decode strips a UTF-8 or UTF-16 byte order mark and returns UTF-8 text.
// Input without a BOM is treated as UTF-8.
func decode(content []byte) (string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(decoder, content)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Format renders segments as SRT. Segments are written in the order given.
func Format(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", seg.Index, seg.Start, seg.End, strings.TrimSpace(seg.Text))
	}
	return b.String()
}

// WriteFile writes segments to path as UTF-8 SRT.
func WriteFile(path string, segments []Segment) error {
	if err := fileutil.WriteFileAtomic(path, []byte(Format(segments)), 0o644); err != nil {
		return fmt.Errorf("write srt %s: %w", path, err)
	}
	return nil
}

// IndexByNumber builds the index -> Segment lookup used during retries.
func IndexByNumber(segments []Segment) map[int]Segment {
	out := make(map[int]Segment, len(segments))
	for _, seg := range segments {
		out[seg.Index] = seg
	}
	return out
}
