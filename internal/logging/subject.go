package logging

import (
	"path/filepath"
	"strings"
)

// FormatSubject builds the file/segment subject string used in console output,
// e.g. "episode01.srt · #12".
func FormatSubject(file, segment string) string {
	file = strings.TrimSpace(file)
	segment = strings.TrimSpace(segment)
	parts := make([]string, 0, 2)
	if file != "" {
		parts = append(parts, filepath.Base(file))
	}
	if segment != "" {
		parts = append(parts, "#"+segment)
	}
	return strings.Join(parts, " · ")
}
