package history

import "time"

// Direction says which way a run converted.
type Direction string

const (
	DirectionSpeech     Direction = "speech"     // subtitles to audio
	DirectionTranscribe Direction = "transcribe" // media to subtitles
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunCancelled RunStatus = "cancelled"
)

// FileStatus is the outcome of one file within a run.
type FileStatus string

const (
	FileRunning   FileStatus = "running"
	FileCompleted FileStatus = "completed"
	FileFailed    FileStatus = "failed"
	FileAbandoned FileStatus = "abandoned"
	FileCancelled FileStatus = "cancelled"
)

// Run is one invocation.
type Run struct {
	ID             string     `json:"id"`
	Direction      Direction  `json:"direction"`
	Status         RunStatus  `json:"status"`
	Voice          string     `json:"voice,omitempty"`
	FilesTotal     int        `json:"files_total"`
	FilesCompleted int        `json:"files_completed"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Duration is the wall time of a finished run, zero while running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// FileRecord is one file processed in a run.
type FileRecord struct {
	ID            int64      `json:"id"`
	RunID         string     `json:"run_id"`
	SourcePath    string     `json:"source_path"`
	OutputPath    string     `json:"output_path,omitempty"`
	Status        FileStatus `json:"status"`
	SegmentsTotal int        `json:"segments_total"`
	SegmentsDone  int        `json:"segments_done"`
	Rounds        int        `json:"rounds"`
	ErrorMessage  string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// FileOutcome is what FinishFile records.
type FileOutcome struct {
	Status        FileStatus
	OutputPath    string
	SegmentsTotal int
	SegmentsDone  int
	Rounds        int
	Err           error
}
