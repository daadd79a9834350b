// Package main hosts the subvoice CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into runs of the two
// pipelines: convert (subtitles to a synchronized speech track) and
// transcribe (media to subtitles, optionally translated). Supporting
// commands list voices, sweep stale work directories, check external tools,
// show run history, send a test notification, and scaffold configuration. Configuration resolution,
// logger setup and interrupt handling live here so the internal packages
// stay free of process concerns.
package main
