// Package jobs runs subtitle files through conversion one after another.
//
// The Controller owns the run: it assigns a run id, records the run in the
// history store, and for each file parses the subtitles, leases a workspace
// directory, resumes from checkpoints, drives the batch scheduler, and
// assembles the final track. A file whose retry loop keeps stalling is
// retried up to max_file_rounds times and then abandoned without assembly.
// Failures are contained to their file; only Cancel stops the run.
package jobs
