// Package history records conversion runs in SQLite.
//
// A run groups the files processed by one invocation; each file row keeps the
// outcome, segment counts, rounds used and output path. Checkpoints list the
// segment indices whose clips were finished for a given source file and
// content digest, so a later run can skip them while the clips still exist in
// the workspace. A changed source file invalidates its checkpoints.
//
// Schema changes bump schemaVersion in schema.go; users delete history.db to
// adopt the new schema.
package history
