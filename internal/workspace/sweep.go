package workspace

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"subvoice/internal/logging"
)

// SweepResult contains the outcome of a stale directory sweep.
type SweepResult struct {
	Removed []string
	Locked  []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// Sweep removes job directories not modified within maxAge. Directories whose
// lock is held are skipped. maxAge <= 0 disables the sweep.
func (w *Workspace) Sweep(ctx context.Context, maxAge time.Duration) SweepResult {
	result := SweepResult{}
	if w.root == "" || maxAge <= 0 {
		return result
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: w.root, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(w.root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if locked(dirPath) {
			result.Locked = append(result.Locked, dirPath)
			continue
		}
		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			w.logger.Warn("failed to remove stale job directory",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldEventType, "workspace_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check work_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		w.logger.Info("removed stale job directory",
			logging.String("path", dirPath),
			logging.Duration("age", time.Since(info.ModTime()).Round(time.Second)),
			logging.String(logging.FieldEventType, "workspace_cleanup"),
		)
	}
	return result
}

// locked reports whether another holder has the directory's lock. A directory
// without a lock file is never considered locked.
func locked(dir string) bool {
	path := filepath.Join(dir, LockFileName)
	if _, err := os.Stat(path); err != nil {
		return false
	}
	probe := flock.New(path)
	ok, err := probe.TryLock()
	if err != nil {
		return true
	}
	if ok {
		_ = probe.Unlock()
		return false
	}
	return true
}

// DirInfo contains metadata about a job directory.
type DirInfo struct {
	Name      string
	Path      string
	ModTime   time.Time
	Size      int64
	Artifacts int
	Locked    bool
}

// List returns every job directory with its metadata.
func (w *Workspace) List() ([]DirInfo, error) {
	if w.root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirPath := filepath.Join(w.root, entry.Name())
		size, files := dirSize(dirPath)
		dirs = append(dirs, DirInfo{
			Name:      entry.Name(),
			Path:      dirPath,
			ModTime:   info.ModTime(),
			Size:      size,
			Artifacts: files,
			Locked:    locked(dirPath),
		})
	}
	return dirs, nil
}

// dirSize totals regular files under path, excluding the lock file.
func dirSize(path string) (int64, int) {
	var (
		size  int64
		files int
	)
	_ = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best effort
		}
		if info.IsDir() || filepath.Base(p) == LockFileName {
			return nil
		}
		size += info.Size()
		files++
		return nil
	})
	return size, files
}
