package batch

import (
	"fmt"
	"path/filepath"
	"sort"

	"subvoice/internal/subtitles"
)

// ArtifactExt is the extension of per-segment clips written by the backend.
const ArtifactExt = ".mp3"

// FileJob is the conversion state of one subtitle file. Only the scheduler's
// control loop mutates it.
type FileJob struct {
	Source    string
	Segments  []subtitles.Segment
	OutputDir string

	// Failed holds segment indices that need another attempt.
	Failed map[int]struct{}
	// Cursor is the position in Segments of the next forward batch.
	Cursor int

	byIndex   map[int]subtitles.Segment
	succeeded map[int]struct{}
	// boundary is the end of a forward batch whose failures are still being
	// retried; Cursor moves to it once Failed drains.
	boundary int
}

// NewFileJob creates the job for source. Segments must already be ordered by
// index; artifacts go to outputDir.
func NewFileJob(source string, segments []subtitles.Segment, outputDir string) *FileJob {
	return &FileJob{
		Source:    source,
		Segments:  segments,
		OutputDir: outputDir,
		Failed:    make(map[int]struct{}),
		byIndex:   subtitles.IndexByNumber(segments),
		succeeded: make(map[int]struct{}, len(segments)),
	}
}

// ArtifactPath returns where the clip for index is written.
func (j *FileJob) ArtifactPath(index int) string {
	return filepath.Join(j.OutputDir, fmt.Sprintf("%d%s", index, ArtifactExt))
}

// Segment looks a segment up by index.
func (j *FileJob) Segment(index int) (subtitles.Segment, bool) {
	seg, ok := j.byIndex[index]
	return seg, ok
}

// MarkSucceeded records indices whose clips already exist, e.g. when resuming
// from a checkpoint. Unknown indices are ignored.
func (j *FileJob) MarkSucceeded(indices ...int) {
	for _, idx := range indices {
		if _, ok := j.byIndex[idx]; !ok {
			continue
		}
		j.succeeded[idx] = struct{}{}
		delete(j.Failed, idx)
	}
}

func (j *FileJob) markFailed(idx int) {
	delete(j.succeeded, idx)
	j.Failed[idx] = struct{}{}
}

// Done reports terminal success: nothing failed and every segment reached.
func (j *FileJob) Done() bool {
	return len(j.Failed) == 0 && j.Cursor >= len(j.Segments)
}

// Progress is succeeded segments over total segments.
func (j *FileJob) Progress() float64 {
	if len(j.Segments) == 0 {
		return 1
	}
	return float64(len(j.succeeded)) / float64(len(j.Segments))
}

// SucceededIndices returns the indices with a finished clip, ascending.
func (j *FileJob) SucceededIndices() []int {
	return sortedKeys(j.succeeded)
}

// FailedIndices returns the retry set, ascending.
func (j *FileJob) FailedIndices() []int {
	return sortedKeys(j.Failed)
}

// Artifacts maps each succeeded index to its clip path.
func (j *FileJob) Artifacts() map[int]string {
	out := make(map[int]string, len(j.succeeded))
	for idx := range j.succeeded {
		out[idx] = j.ArtifactPath(idx)
	}
	return out
}

// Snapshot is a read-only view of a job for diagnostics.
type Snapshot struct {
	Source    string `json:"source"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    []int  `json:"failed"`
	Cursor    int    `json:"cursor"`
}

// Snapshot captures the current job state.
func (j *FileJob) Snapshot() Snapshot {
	return Snapshot{
		Source:    j.Source,
		Total:     len(j.Segments),
		Succeeded: len(j.succeeded),
		Failed:    j.FailedIndices(),
		Cursor:    j.Cursor,
	}
}

func sortedKeys(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
