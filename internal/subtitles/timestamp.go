package subtitles

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamp is an offset from the start of the media in whole milliseconds.
type Timestamp int64

// FromSeconds converts a fractional second offset, as reported by speech
// recognizers, to a Timestamp rounded to the nearest millisecond. Negative
// values clamp to zero.
func FromSeconds(seconds float64) Timestamp {
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	return Timestamp(math.Round(seconds * 1000))
}

// Milliseconds returns the offset as an integer millisecond count.
func (t Timestamp) Milliseconds() int64 { return int64(t) }

// Duration returns the offset as a time.Duration.
func (t Timestamp) Duration() time.Duration { return time.Duration(t) * time.Millisecond }

// String renders the SRT form HH:MM:SS,mmm.
func (t Timestamp) String() string {
	ms := int64(t)
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3_600_000
	ms %= 3_600_000
	minutes := ms / 60_000
	ms %= 60_000
	seconds := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, ms)
}

// ParseTimestamp parses HH:MM:SS,mmm. A period is accepted in place of the
// comma since some tools emit WebVTT-style separators.
func ParseTimestamp(value string) (Timestamp, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	clock, fraction, ok := strings.Cut(strings.ReplaceAll(value, ".", ","), ",")
	if !ok || len(fraction) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(clock, ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(fraction)
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	if hours < 0 || minutes < 0 || minutes > 59 || seconds < 0 || seconds > 59 || millis < 0 {
		return 0, fmt.Errorf("timestamp %q out of range", value)
	}
	total := int64(hours)*3_600_000 + int64(minutes)*60_000 + int64(seconds)*1000 + int64(millis)
	return Timestamp(total), nil
}
