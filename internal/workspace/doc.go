// Package workspace owns the per-file artifact directories under work_dir.
//
// Each subtitle file converts inside its own directory, held under an
// advisory flock for the lifetime of the job so a concurrent run or the
// janitor never touches it. Directories survive cancellation and failure so a
// later run can resume from the clips already there; Sweep removes unlocked
// directories older than the retention window.
package workspace
