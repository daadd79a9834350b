package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"subvoice/internal/control"
	"subvoice/internal/events"
	"subvoice/internal/logging"
	"subvoice/internal/subtitles"
	"subvoice/internal/tts"
)

// ErrBatchFault marks a failure of a whole batch dispatch rather than of
// individual segments.
var ErrBatchFault = errors.New("batch fault")

// Synthesizer converts one segment. *tts.Client implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, seg subtitles.Segment, voice tts.VoiceProfile, outputPath string, maxAttempts int) tts.ConversionResult
}

// Options are read-only for the duration of a run.
type Options struct {
	MaxWorkers    int
	BatchSize     int
	RetryAttempts int
	Voice         tts.VoiceProfile

	PollInterval         time.Duration
	ConnectivityCooldown time.Duration
	FaultPause           time.Duration
}

const (
	defaultCooldown   = 2 * time.Second
	defaultFaultPause = time.Second
)

func (o Options) withDefaults() Options {
	if o.MaxWorkers < 1 {
		o.MaxWorkers = 1
	}
	if o.BatchSize < 1 {
		o.BatchSize = 1
	}
	if o.RetryAttempts < 1 {
		o.RetryAttempts = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = control.DefaultPollInterval
	}
	if o.ConnectivityCooldown < 0 {
		o.ConnectivityCooldown = 0
	}
	if o.FaultPause < 0 {
		o.FaultPause = 0
	}
	return o
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		MaxWorkers:           15,
		BatchSize:            10,
		RetryAttempts:        3,
		PollInterval:         control.DefaultPollInterval,
		ConnectivityCooldown: defaultCooldown,
		FaultPause:           defaultFaultPause,
	}
}

// BatchInfo describes one dispatched batch.
type BatchInfo struct {
	Round int
	// Indices are the segment indices dispatched, ascending.
	Indices []int
	// Retry is true when the batch was drawn from the failed set.
	Retry bool
	// FailedBefore is the failed set as it stood before selection.
	FailedBefore []int
}

// Scheduler runs FileJobs to completion one round at a time.
type Scheduler struct {
	synth   Synthesizer
	opts    Options
	signal  *control.Signal
	sink    events.Sink
	logger  *slog.Logger
	onBatch func(BatchInfo)
	onRound func(*FileJob, RoundReport) bool
}

// RoundReport describes one finished round to the OnRound observer.
type RoundReport struct {
	Round int
	// Progressed is true when at least one new segment got a clip.
	Progressed bool
	// Fault is true when the whole batch failed and was re-queued.
	Fault bool
}

// NewScheduler wires a scheduler. signal may be nil, meaning never paused or
// cancelled.
func NewScheduler(synth Synthesizer, opts Options, signal *control.Signal, sink events.Sink, logger *slog.Logger) *Scheduler {
	if signal == nil {
		signal = control.NewSignal()
	}
	return &Scheduler{
		synth:  synth,
		opts:   opts.withDefaults(),
		signal: signal,
		sink:   events.Or(sink),
		logger: logging.NewComponentLogger(logger, "batch"),
	}
}

// OnBatch registers an observer called before each batch is dispatched.
func (s *Scheduler) OnBatch(fn func(BatchInfo)) { s.onBatch = fn }

// OnRound registers an observer called after each round's results are
// applied. Returning false ends Run, which then reports false.
func (s *Scheduler) OnRound(fn func(*FileJob, RoundReport) bool) { s.onRound = fn }

// Run drives job until every segment has a clip (true), or until the signal
// is cancelled or the round observer stops it (false). Segment failures are
// retried in later rounds ahead of new work with no ceiling of their own.
// Calling Run again on the same job continues where it stopped.
func (s *Scheduler) Run(ctx context.Context, job *FileJob) bool {
	logger := s.logger.With(logging.File(job.Source))
	total := len(job.Segments)
	round := 0

	for len(job.Failed) > 0 || job.Cursor < total {
		if s.signal.Cancelled() || ctx.Err() != nil {
			logger.Info("conversion cancelled",
				logging.String(logging.FieldEventType, "file_cancelled"),
				logging.Int("cursor", job.Cursor),
				logging.Int("failed", len(job.Failed)),
			)
			return false
		}
		if s.signal.State() == control.Paused {
			events.Notify(s.sink, events.StatusPaused, job.Source, "conversion paused")
			if !s.signal.WaitWhilePaused(ctx, s.opts.PollInterval) {
				continue
			}
			events.Notify(s.sink, events.StatusResumed, job.Source, "conversion resumed")
		}

		info, batch, batchEnd := s.selectBatch(job)
		round++
		info.Round = round
		if len(batch) == 0 {
			job.Cursor = batchEnd
			continue
		}
		if !info.Retry {
			job.boundary = batchEnd
		}
		if s.onBatch != nil {
			s.onBatch(info)
		}
		logger.Debug("dispatching batch",
			logging.Int("round", round),
			logging.Bool("retry", info.Retry),
			logging.Any("segments", info.Indices),
		)

		results, err := s.dispatch(ctx, job, batch)
		if err != nil {
			for _, seg := range batch {
				job.markFailed(seg.Index)
			}
			logging.ErrorWithContext(logger, "batch failed", "batch_fault",
				logging.Error(err),
				logging.Any("segments", info.Indices),
				logging.String(logging.FieldErrorHint, "the batch is retried as a unit"),
			)
			events.Log(s.sink, slog.LevelError, job.Source, 0, "batch failed", err.Error())
			_ = control.Sleep(ctx, s.opts.FaultPause)
			if !s.observe(job, RoundReport{Round: round, Fault: true}) {
				return false
			}
			continue
		}

		before := len(job.succeeded)
		s.apply(ctx, job, batch, results, logger)

		if len(job.Failed) == 0 && job.boundary > job.Cursor {
			job.Cursor = job.boundary
		}
		events.Progress(s.sink, events.ScopeFile, job.Source, job.Progress())
		if !s.observe(job, RoundReport{Round: round, Progressed: len(job.succeeded) > before}) {
			logger.Debug("round observer stopped the run", logging.Int("round", round))
			return false
		}
	}
	return true
}

func (s *Scheduler) observe(job *FileJob, report RoundReport) bool {
	if s.onRound == nil {
		return true
	}
	return s.onRound(job, report)
}

// selectBatch takes retries first. A forward batch skips segments that
// already have a clip; if all of them do, the batch is empty and the caller
// just advances the cursor.
func (s *Scheduler) selectBatch(job *FileJob) (BatchInfo, []subtitles.Segment, int) {
	info := BatchInfo{FailedBefore: job.FailedIndices()}
	if len(job.Failed) > 0 {
		indices := info.FailedBefore
		if len(indices) > s.opts.BatchSize {
			indices = indices[:s.opts.BatchSize]
		}
		batch := make([]subtitles.Segment, 0, len(indices))
		for _, idx := range indices {
			delete(job.Failed, idx)
			if seg, ok := job.byIndex[idx]; ok {
				batch = append(batch, seg)
			}
		}
		info.Retry = true
		info.Indices = append([]int(nil), indices...)
		return info, batch, job.Cursor
	}

	end := min(job.Cursor+s.opts.BatchSize, len(job.Segments))
	batch := make([]subtitles.Segment, 0, end-job.Cursor)
	for _, seg := range job.Segments[job.Cursor:end] {
		if _, done := job.succeeded[seg.Index]; done {
			continue
		}
		batch = append(batch, seg)
		info.Indices = append(info.Indices, seg.Index)
	}
	return info, batch, end
}

// dispatch runs one batch with at most MaxWorkers concurrent calls. Workers
// only send results; the control loop applies them. A panic in any worker
// fails the whole batch.
func (s *Scheduler) dispatch(ctx context.Context, job *FileJob, batch []subtitles.Segment) (results []tts.ConversionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrBatchFault, r)
		}
	}()

	sem := make(chan struct{}, s.opts.MaxWorkers)
	out := make(chan tts.ConversionResult, len(batch))
	var (
		wg       sync.WaitGroup
		faultMu  sync.Mutex
		faultErr error
	)
	for _, seg := range batch {
		wg.Add(1)
		go func(seg subtitles.Segment) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					faultMu.Lock()
					if faultErr == nil {
						faultErr = fmt.Errorf("%w: segment %d: %v", ErrBatchFault, seg.Index, r)
					}
					faultMu.Unlock()
				}
			}()
			out <- s.synth.Synthesize(ctx, seg, s.opts.Voice, job.ArtifactPath(seg.Index), s.opts.RetryAttempts)
		}(seg)
	}
	wg.Wait()
	close(out)

	if faultErr != nil {
		return nil, faultErr
	}
	results = make([]tts.ConversionResult, 0, len(batch))
	for res := range out {
		results = append(results, res)
	}
	return results, nil
}

// apply folds results into the job by segment index. Any dispatched segment
// without a result counts as failed.
func (s *Scheduler) apply(ctx context.Context, job *FileJob, batch []subtitles.Segment, results []tts.ConversionResult, logger *slog.Logger) {
	pending := make(map[int]struct{}, len(batch))
	for _, seg := range batch {
		pending[seg.Index] = struct{}{}
	}
	connectivityLost := false
	for _, res := range results {
		if _, ok := pending[res.SegmentIndex]; !ok {
			logger.Warn("result for unknown segment ignored",
				logging.Segment(res.SegmentIndex),
				logging.String(logging.FieldEventType, "result_unmatched"),
				logging.String(logging.FieldErrorHint, "report this as a bug"),
				logging.String(logging.FieldImpact, "none"),
			)
			continue
		}
		delete(pending, res.SegmentIndex)
		if res.Success {
			job.succeeded[res.SegmentIndex] = struct{}{}
			continue
		}
		job.markFailed(res.SegmentIndex)
		detail := ""
		if res.Err != nil {
			detail = res.Err.Error()
		}
		switch res.Kind {
		case tts.KindConnectivityLost:
			connectivityLost = true
		case tts.KindCancelled:
			logger.Debug("segment interrupted", logging.Segment(res.SegmentIndex), logging.Error(res.Err))
		default:
			logging.WarnWithContext(logger, "segment synthesis failed", "segment_failed",
				logging.Segment(res.SegmentIndex),
				logging.Int("attempts", res.Attempts),
				logging.String("error_kind", res.Kind.String()),
				logging.String("detail", detail),
				logging.String(logging.FieldErrorHint, "segment will be retried in a later round"),
				logging.String(logging.FieldImpact, "file stays incomplete until the segment succeeds"),
			)
			events.Log(s.sink, slog.LevelError, job.Source, res.SegmentIndex, "segment synthesis failed", detail)
		}
	}
	for idx := range pending {
		job.markFailed(idx)
	}
	if connectivityLost {
		logging.WarnWithContext(logger, "internet connection lost; cooling down", "connection_lost",
			logging.Duration("cooldown", s.opts.ConnectivityCooldown),
			logging.String(logging.FieldErrorHint, "check network access to the speech service"),
			logging.String(logging.FieldImpact, "affected segments are retried after the cooldown"),
		)
		events.Notify(s.sink, events.StatusConnectionLost, job.Source, "internet connection lost during processing")
		_ = control.Sleep(ctx, s.opts.ConnectivityCooldown)
	}
}
