package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"subvoice/internal/batch"
	"subvoice/internal/control"
	"subvoice/internal/events"
	"subvoice/internal/fileutil"
	"subvoice/internal/history"
	"subvoice/internal/logging"
	"subvoice/internal/services"
	"subvoice/internal/subtitles"
)

func (c *Controller) processFile(ctx context.Context, runID, source string) FileResult {
	c.setActive(source)
	ctx = logging.WithFile(ctx, source)
	logger := logging.WithContext(ctx, c.logger)
	result := FileResult{Source: source}

	events.Notify(c.sink, events.StatusFileStarted, source, "conversion started")
	segments, err := subtitles.ParseFile(source, logger)
	if err == nil && len(segments) == 0 {
		err = services.Wrap(services.ErrValidation, "jobs", "parse", "no subtitle segments found", nil)
	}
	fileID := c.beginFile(ctx, logger, runID, source, len(segments))
	defer func() { c.finishFile(ctx, logger, fileID, result) }()
	if err != nil {
		c.failFile(logger, &result, "subtitle file unusable", "parse_failed", err)
		return result
	}
	result.Segments = len(segments)

	lease, err := c.ws.Acquire(source)
	if err != nil {
		c.failFile(logger, &result, "workspace unavailable", "workspace_busy", err)
		return result
	}
	job := batch.NewFileJob(source, segments, lease.Dir)

	digest := c.resume(ctx, logger, job, lease.Artifacts(batch.ArtifactExt))
	result.Resumed = len(job.SucceededIndices())

	sched := batch.NewScheduler(c.synth, c.opts.Batch, c.signal, c.sink, logger)
	recorded := make(map[int]struct{}, len(segments))
	for _, idx := range job.SucceededIndices() {
		recorded[idx] = struct{}{}
	}
	stalled := 0
	sched.OnRound(func(j *batch.FileJob, r batch.RoundReport) bool {
		c.checkpoint(ctx, logger, source, digest, j, recorded)
		if r.Progressed {
			stalled = 0
			return true
		}
		stalled++
		if c.opts.StallRounds > 0 && stalled >= c.opts.StallRounds {
			logger.Info("no progress in recent rounds; ending pass",
				logging.String(logging.FieldEventType, "file_stalled"),
				logging.Int("stalled_rounds", stalled),
				logging.Any("failed_segments", j.FailedIndices()),
			)
			stalled = 0
			return false
		}
		return true
	})

	done := false
	for round := 1; ; round++ {
		result.Rounds = round
		done = sched.Run(ctx, job)
		if done || c.signal.Cancelled() || ctx.Err() != nil {
			break
		}
		if c.opts.MaxFileRounds > 0 && round >= c.opts.MaxFileRounds {
			break
		}
		logger.Info("retrying stalled file",
			logging.String(logging.FieldEventType, "round_retry"),
			logging.Int("round", round+1),
			logging.Any("failed_segments", job.FailedIndices()),
		)
		events.Notify(c.sink, events.StatusRoundRetry, source, fmt.Sprintf("retrying %d failed segments", len(job.Failed)))
		if err := control.Sleep(ctx, c.opts.RoundPause); err != nil {
			break
		}
	}
	result.Succeeded = len(job.SucceededIndices())

	if !done {
		_ = lease.Release()
		if c.signal.Cancelled() || ctx.Err() != nil {
			result.Status = history.FileCancelled
			logger.Info("file conversion cancelled; clips kept for resume",
				logging.String(logging.FieldEventType, "file_cancelled"),
				logging.Int("succeeded", result.Succeeded),
				logging.Int("segments", result.Segments),
				logging.String("workspace", lease.Dir),
			)
			return result
		}
		result.Status = history.FileAbandoned
		result.Err = fmt.Errorf("segments %v still failing after %d rounds", job.FailedIndices(), result.Rounds)
		logging.WarnWithContext(logger, "file abandoned", "file_abandoned",
			logging.Any("failed_segments", job.FailedIndices()),
			logging.Int("rounds", result.Rounds),
			logging.String(logging.FieldErrorHint, "check network access and the voice settings, then rerun to resume"),
			logging.String(logging.FieldImpact, "no audio track written for this file"),
		)
		events.Notify(c.sink, events.StatusFileAbandoned, source, result.Err.Error())
		return result
	}

	output := c.OutputPath(source)
	partial := partialPath(output)
	report, err := c.assembler.Assemble(ctx, segments, job.Artifacts(), partial)
	if err == nil {
		err = fileutil.MoveFile(partial, output)
	}
	if err != nil {
		removeQuietly(partial)
		_ = lease.Release()
		c.failFile(logger, &result, "audio assembly failed", "assembly_failed", err)
		return result
	}
	report.Output = output
	result.Report = &report
	result.Output = output
	result.Status = history.FileCompleted
	lease.Remove()
	if c.store != nil {
		if err := c.store.ClearCheckpoints(context.WithoutCancel(ctx), source); err != nil {
			logger.Debug("checkpoint cleanup failed", logging.Error(err))
		}
	}
	logger.Info("audio track written",
		logging.String(logging.FieldEventType, "file_completed"),
		logging.String("output", output),
		logging.Int("segments", result.Segments),
		logging.Int("rounds", result.Rounds),
		logging.Int64("duration_ms", report.TotalMs),
	)
	events.Notify(c.sink, events.StatusFileCompleted, source, "audio saved to "+output)
	return result
}

// partialPath keeps the extension so the encoder still picks the format.
func partialPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + ".partial" + ext
}

// resume marks segments done when history holds a checkpoint for the same
// file content and the clip is still in the workspace. It returns the
// source digest, or "" when checkpoints are unavailable.
func (c *Controller) resume(ctx context.Context, logger *slog.Logger, job *batch.FileJob, present map[int]string) string {
	if c.store == nil {
		return ""
	}
	digest, err := fileutil.Digest(job.Source)
	if err != nil {
		logger.Debug("source digest unavailable; resume disabled", logging.Error(err))
		return ""
	}
	if !c.opts.Resume {
		_ = c.store.ClearCheckpoints(ctx, job.Source)
		return digest
	}
	indices, err := c.store.Checkpoints(ctx, job.Source, digest)
	if err != nil {
		logger.Warn("checkpoint lookup failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "checkpoint_read_failed"),
			logging.String(logging.FieldErrorHint, "delete history.db if it is corrupt"),
			logging.String(logging.FieldImpact, "all segments are synthesized again"),
		)
		return digest
	}
	var reuse []int
	for _, idx := range indices {
		if _, ok := present[idx]; ok {
			reuse = append(reuse, idx)
		}
	}
	if len(reuse) > 0 {
		job.MarkSucceeded(reuse...)
		logger.Info("resuming from checkpoint",
			logging.String(logging.FieldEventType, "resume"),
			logging.Int("reused", len(reuse)),
			logging.Int("segments", len(job.Segments)),
		)
	}
	return digest
}

func (c *Controller) checkpoint(ctx context.Context, logger *slog.Logger, source, digest string, job *batch.FileJob, recorded map[int]struct{}) {
	if c.store == nil || digest == "" {
		return
	}
	var fresh []int
	for _, idx := range job.SucceededIndices() {
		if _, ok := recorded[idx]; !ok {
			fresh = append(fresh, idx)
		}
	}
	if len(fresh) == 0 {
		return
	}
	if err := c.store.Checkpoint(context.WithoutCancel(ctx), source, digest, fresh); err != nil {
		logger.Debug("checkpoint write failed", logging.Error(err))
		return
	}
	for _, idx := range fresh {
		recorded[idx] = struct{}{}
	}
}

func (c *Controller) beginFile(ctx context.Context, logger *slog.Logger, runID, source string, segments int) int64 {
	if c.store == nil {
		return 0
	}
	id, err := c.store.BeginFile(ctx, runID, source, segments)
	if err != nil {
		logger.Debug("history file insert failed", logging.Error(err))
		return 0
	}
	return id
}

func (c *Controller) finishFile(ctx context.Context, logger *slog.Logger, id int64, result FileResult) {
	if c.store == nil || id == 0 {
		return
	}
	err := c.store.FinishFile(context.WithoutCancel(ctx), id, history.FileOutcome{
		Status:        result.Status,
		OutputPath:    result.Output,
		SegmentsTotal: result.Segments,
		SegmentsDone:  result.Succeeded,
		Rounds:        result.Rounds,
		Err:           result.Err,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("history file update failed", logging.Error(err))
	}
}
