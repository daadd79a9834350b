// Package logging assembles structured slog loggers and formatting helpers used
// across subvoice.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context helpers so pipeline code can tag log lines
// with the run identifier and the file being processed. The console handler
// renders a "file · #segment" subject so per-segment warnings read naturally.
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging
