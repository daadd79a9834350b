// Package translate translates subtitle segments in batches with a small
// worker pool. A batch that keeps failing falls back to its original text,
// so a translation problem never loses a subtitle line.
package translate
