// Package media prepares audio and video inputs for transcription: it
// inspects them with ffprobe and extracts a mono 16 kHz WAV track with
// ffmpeg when the input is a video container.
package media
