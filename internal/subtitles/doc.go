// Package subtitles reads and writes SRT subtitle files.
//
// Parsing is forgiving: a byte order mark is tolerated, and blocks that cannot
// be understood are skipped with a warning so that one bad cue does not cost
// the whole file. Timestamps are held as integer milliseconds so that audio
// reconstruction downstream can do exact arithmetic.
package subtitles
