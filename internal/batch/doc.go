// Package batch drives one subtitle file through speech synthesis.
//
// A Scheduler works a FileJob in rounds. Each round dispatches one batch of
// segments to a Synthesizer with bounded concurrency. Failed segments go into
// the job's retry set; while that set is non-empty, batches are drawn only
// from it and the forward cursor does not move. Connectivity losses add a
// cooldown and a distinct status event. A panic during dispatch fails the
// whole batch, which is retried as a unit after a short pause.
//
// Pause and cancel are observed between rounds only. A cancelled run lets
// the in-flight batch finish and returns false, leaving every clip on disk.
package batch
