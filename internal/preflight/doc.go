// Package preflight provides readiness checks for the filesystem paths and
// external services subvoice depends on.
//
// These checks run in two contexts:
//   - convert and transcribe call RunAll before starting a run. If a
//     directory check fails the run is refused instead of failing file by
//     file.
//   - The doctor command shows every result, optionally including a live
//     request to the translation LLM.
package preflight
