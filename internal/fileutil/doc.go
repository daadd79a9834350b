// Package fileutil holds small file helpers: content digests for resume
// checkpoints, atomic writes for caches, and moves that survive crossing
// filesystems.
package fileutil
