// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Prober.Inspect runs ffprobe and returns the parsed Result. Helper methods
// pick the primary audio stream and read its language tag and the container
// duration.
package ffprobe
