// Package transcribe turns audio and video files into SRT subtitles:
// extract the audio track, run speech recognition, keep the original
// transcript in the work dir, then translate it when the detected language
// differs from the target.
package transcribe
