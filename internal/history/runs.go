package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// BeginRun inserts run with status running. StartedAt defaults to now.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("history: run id required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO runs (id, direction, status, voice, files_total, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Direction), string(RunRunning), nullableString(run.Voice), run.FilesTotal, formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stamps the final status of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, filesCompleted int) error {
	_, err := s.exec(ctx,
		`UPDATE runs SET status = ?, files_completed = ?, finished_at = ? WHERE id = ?`,
		string(status), filesCompleted, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// BeginFile records that source started processing within run and returns
// the file row id.
func (s *Store) BeginFile(ctx context.Context, runID, source string, segments int) (int64, error) {
	res, err := s.exec(ctx,
		`INSERT INTO files (run_id, source_path, status, segments_total, started_at) VALUES (?, ?, ?, ?, ?)`,
		runID, source, string(FileRunning), segments, formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	return res.LastInsertId()
}

// FinishFile stores the outcome of a file.
func (s *Store) FinishFile(ctx context.Context, id int64, outcome FileOutcome) error {
	var message string
	if outcome.Err != nil {
		message = outcome.Err.Error()
	}
	_, err := s.exec(ctx,
		`UPDATE files SET status = ?, output_path = ?, segments_total = ?, segments_done = ?, rounds = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		string(outcome.Status), nullableString(outcome.OutputPath), outcome.SegmentsTotal, outcome.SegmentsDone,
		outcome.Rounds, nullableString(message), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("finish file: %w", err)
	}
	return nil
}

const runColumns = "id, direction, status, voice, files_total, files_completed, started_at, finished_at"

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run         Run
		direction   string
		status      string
		voice       sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(&run.ID, &direction, &status, &voice, &run.FilesTotal, &run.FilesCompleted, &startedRaw, &finishedRaw); err != nil {
		return Run{}, err
	}
	run.Direction = Direction(direction)
	run.Status = RunStatus(status)
	run.Voice = voice.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns the run with id, or nil when it does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// Files returns the files of a run in processing order.
func (s *Store) Files(ctx context.Context, runID string) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, source_path, output_path, status, segments_total, segments_done, rounds, error_message, started_at, finished_at
		 FROM files WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var (
			rec         FileRecord
			output      sql.NullString
			status      string
			message     sql.NullString
			startedRaw  string
			finishedRaw sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.SourcePath, &output, &status, &rec.SegmentsTotal,
			&rec.SegmentsDone, &rec.Rounds, &message, &startedRaw, &finishedRaw); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		rec.OutputPath = output.String
		rec.Status = FileStatus(status)
		rec.ErrorMessage = message.String
		if started, err := parseTimeString(startedRaw); err == nil {
			rec.StartedAt = started
		}
		if finishedRaw.Valid {
			if finished, err := parseTimeString(finishedRaw.String); err == nil {
				rec.FinishedAt = &finished
			}
		}
		files = append(files, rec)
	}
	return files, rows.Err()
}

// Prune deletes runs started before cutoff along with their files and
// returns how many runs were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM runs WHERE started_at < ? AND status != ?`, formatTime(cutoff), string(RunRunning))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

// MarkInterrupted closes runs left in the running state by a crashed process.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	now := formatTime(time.Now())
	if _, err := s.exec(ctx, `UPDATE files SET status = ?, finished_at = ? WHERE status = ?`,
		string(FileCancelled), now, string(FileRunning)); err != nil {
		return 0, fmt.Errorf("close interrupted files: %w", err)
	}
	res, err := s.exec(ctx, `UPDATE runs SET status = ?, finished_at = ? WHERE status = ?`,
		string(RunCancelled), now, string(RunRunning))
	if err != nil {
		return 0, fmt.Errorf("close interrupted runs: %w", err)
	}
	return res.RowsAffected()
}
