// Package whisperx runs WhisperX speech recognition through uvx and reads
// back its JSON transcript: timed segments plus the detected language.
//
// Configuration options (model, CUDA, VAD method) are passed via Config.
package whisperx
