package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"subvoice/internal/logging"
	"subvoice/internal/textutil"
)

// LockFileName is the advisory lock kept inside every job directory.
const LockFileName = ".subvoice.lock"

// ErrBusy is returned when another process holds a job directory.
var ErrBusy = errors.New("workspace directory in use")

// Workspace roots job directories at a single work dir.
type Workspace struct {
	root   string
	logger *slog.Logger
}

// New returns a workspace rooted at root.
func New(root string, logger *slog.Logger) *Workspace {
	return &Workspace{root: strings.TrimSpace(root), logger: logging.NewComponentLogger(logger, "workspace")}
}

// Root returns the work dir.
func (w *Workspace) Root() string { return w.root }

// DirFor returns the job directory for source: the sanitized file stem plus
// a short hash of the absolute source path, so equally named files in
// different directories never share clips.
func (w *Workspace) DirFor(source string) string {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	name := textutil.SanitizeFileName(stem)
	if name == "" || name == "." || name == ".." {
		name = "untitled"
	}
	return filepath.Join(w.root, name+"-"+pathHash(source))
}

func pathHash(source string) string {
	abs, err := filepath.Abs(source)
	if err != nil {
		abs = filepath.Clean(source)
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:4])
}

// Lease is exclusive ownership of one job directory.
type Lease struct {
	Dir    string
	lock   *flock.Flock
	logger *slog.Logger
}

// Acquire creates the job directory for source and locks it. It returns
// ErrBusy when the lock is already held.
func (w *Workspace) Acquire(source string) (*Lease, error) {
	dir := w.DirFor(source)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBusy, dir)
	}
	return &Lease{Dir: dir, lock: lock, logger: w.logger}, nil
}

// Release unlocks the directory and leaves its contents for a later resume.
func (l *Lease) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

// Remove deletes the directory and everything in it, then drops the lock.
// Errors are logged, never returned; cleanup is best effort.
func (l *Lease) Remove() {
	if l == nil {
		return
	}
	if err := os.RemoveAll(l.Dir); err != nil {
		l.logger.Warn("failed to remove job directory",
			logging.String("path", l.Dir),
			logging.Error(err),
			logging.String(logging.FieldEventType, "workspace_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "check work_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed until the next sweep"),
		)
	}
	_ = l.Release()
}

// Artifacts lists clips already present in the directory, keyed by segment
// index. Files are named <index><ext>; empty files are ignored.
func (l *Lease) Artifacts(ext string) map[int]string {
	out := make(map[int]string)
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(name, ext))
		if err != nil || idx <= 0 {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		out[idx] = filepath.Join(l.Dir, name)
	}
	return out
}
