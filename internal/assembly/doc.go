// Package assembly rebuilds one continuous audio track from per-segment clips.
//
// The timeline is 16-bit mono PCM at SampleRate so every millisecond maps to a
// whole number of samples. Gaps between segments and segments without a clip
// become silence; clips are truncated or padded to their segment's nominal
// duration. The result is encoded by a Codec: WAVCodec writes PCM WAV with
// go-audio, FFmpegCodec decodes arbitrary clips and writes MP3 through ffmpeg.
package assembly
