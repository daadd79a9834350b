// Package services defines shared error markers and the external service
// clients used by the pipeline.
//
// Key responsibilities:
//   - Structured error markers plus the Wrap helper so failures from external
//     tools, bad input and bad configuration can be told apart with errors.Is.
//   - Subpackages wrapping external collaborators: llm (chat completion API
//     used for subtitle translation) and whisperx (speech recognition CLI).
package services
