// Package language normalizes the language codes that flow between ffprobe
// stream tags, WhisperX output, configuration and translation requests.
// Well-known codes come from a small table; everything else is resolved
// through golang.org/x/text/language.
package language
