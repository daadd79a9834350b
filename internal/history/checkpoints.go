package history

import (
	"context"
	"fmt"
	"time"
)

// Checkpoint records that indices of source (at digest) have finished clips.
// Rows for an older digest of the same source are replaced.
func (s *Store) Checkpoint(ctx context.Context, source, digest string, indices []int) error {
	if len(indices) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE source_path = ? AND source_digest != ?`, source, digest); err != nil {
		return fmt.Errorf("drop stale checkpoints: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO checkpoints (source_path, source_digest, segment_index, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(source_path, segment_index) DO UPDATE SET source_digest = excluded.source_digest, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare checkpoint: %w", err)
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	for _, idx := range indices {
		if _, err := stmt.ExecContext(ctx, source, digest, idx, now); err != nil {
			return fmt.Errorf("insert checkpoint %d: %w", idx, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// Checkpoints returns the finished indices for source at digest, ascending.
// A digest mismatch means the file changed; nothing is returned.
func (s *Store) Checkpoints(ctx context.Context, source, digest string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT segment_index FROM checkpoints WHERE source_path = ? AND source_digest = ? ORDER BY segment_index`,
		source, digest)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

// ClearCheckpoints forgets every checkpoint of source.
func (s *Store) ClearCheckpoints(ctx context.Context, source string) error {
	if _, err := s.exec(ctx, `DELETE FROM checkpoints WHERE source_path = ?`, source); err != nil {
		return fmt.Errorf("clear checkpoints: %w", err)
	}
	return nil
}
