package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"subvoice/internal/assembly"
	"subvoice/internal/batch"
	"subvoice/internal/config"
	"subvoice/internal/control"
	"subvoice/internal/events"
	"subvoice/internal/history"
	"subvoice/internal/logging"
	"subvoice/internal/services"
	"subvoice/internal/tts"
	"subvoice/internal/workspace"
)

// OutputSuffix is appended to the input stem to name the audio track.
const OutputSuffix = "_audio"

const defaultRoundPause = time.Second

// Options configure a Controller. They are read-only during a run.
type Options struct {
	Batch batch.Options
	// StallRounds ends a scheduler pass after that many consecutive rounds in
	// which no segment succeeded. Zero lets a pass run until cancelled.
	StallRounds int
	// MaxFileRounds bounds how many times a stalled file is retried before it
	// is abandoned. Zero retries until cancelled.
	MaxFileRounds int
	RoundPause    time.Duration
	// OutputDir holds finished tracks; empty writes beside each input.
	OutputDir string
	// OutputExt selects the track format, ".mp3" by default.
	OutputExt string
	// Resume reuses clips recorded in history checkpoints.
	Resume bool
}

// OptionsFromConfig maps configuration onto controller options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Batch: batch.Options{
			MaxWorkers:    cfg.Conversion.MaxWorkers,
			BatchSize:     cfg.Conversion.BatchSize,
			RetryAttempts: cfg.Conversion.RetryAttempts,
			Voice:         tts.ProfileFromConfig(cfg),
		},
		StallRounds:   cfg.Conversion.StallRounds,
		MaxFileRounds: cfg.Conversion.MaxFileRounds,
		OutputDir:     cfg.Paths.OutputDir,
		Resume:        true,
	}
	defaults := batch.DefaultOptions()
	opts.Batch.PollInterval = defaults.PollInterval
	opts.Batch.ConnectivityCooldown = defaults.ConnectivityCooldown
	opts.Batch.FaultPause = defaults.FaultPause
	return opts
}

// Deps are the collaborators a Controller drives. History and Sink are
// optional.
type Deps struct {
	Synth     batch.Synthesizer
	Assembler *assembly.Assembler
	Workspace *workspace.Workspace
	History   *history.Store
	Sink      events.Sink
	Logger    *slog.Logger
}

// Controller processes files sequentially and exposes pause, resume and
// cancel.
type Controller struct {
	opts      Options
	synth     batch.Synthesizer
	assembler *assembly.Assembler
	ws        *workspace.Workspace
	store     *history.Store
	sink      events.Sink
	logger    *slog.Logger
	signal    *control.Signal

	mu     sync.Mutex
	runID  string
	active string
}

// NewController wires a controller.
func NewController(opts Options, deps Deps) (*Controller, error) {
	if deps.Synth == nil || deps.Assembler == nil || deps.Workspace == nil {
		return nil, errors.New("jobs: controller requires synthesizer, assembler and workspace")
	}
	if opts.RoundPause <= 0 {
		opts.RoundPause = defaultRoundPause
	}
	if strings.TrimSpace(opts.OutputExt) == "" {
		opts.OutputExt = ".mp3"
	}
	if !strings.HasPrefix(opts.OutputExt, ".") {
		opts.OutputExt = "." + opts.OutputExt
	}
	return &Controller{
		opts:      opts,
		synth:     deps.Synth,
		assembler: deps.Assembler,
		ws:        deps.Workspace,
		store:     deps.History,
		sink:      events.Or(deps.Sink),
		logger:    logging.NewComponentLogger(deps.Logger, "jobs"),
		signal:    control.NewSignal(),
	}, nil
}

// Pause suspends dispatch between rounds.
func (c *Controller) Pause() {
	if c.signal.Pause() {
		c.logger.Info("pause requested", logging.String(logging.FieldEventType, "pause_requested"))
	}
}

// Resume continues a paused run.
func (c *Controller) Resume() {
	if c.signal.Resume() {
		c.logger.Info("resume requested", logging.String(logging.FieldEventType, "resume_requested"))
	}
}

// Cancel stops the run after the in-flight batch finishes. Nothing is
// assembled and clips stay on disk.
func (c *Controller) Cancel() {
	if c.signal.Cancelled() {
		return
	}
	c.signal.Cancel()
	c.logger.Info("cancel requested", logging.String(logging.FieldEventType, "cancel_requested"))
	events.Notify(c.sink, events.StatusCancelled, c.activeFile(), "conversion cancelled")
}

// State returns the current control state.
func (c *Controller) State() control.State { return c.signal.State() }

// RunID returns the id of the current or last run.
func (c *Controller) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

func (c *Controller) activeFile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) setActive(file string) {
	c.mu.Lock()
	c.active = file
	c.mu.Unlock()
}

// OutputPath returns where the track for source is written.
func (c *Controller) OutputPath(source string) string {
	dir := c.opts.OutputDir
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Dir(source)
	}
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(dir, stem+OutputSuffix+c.opts.OutputExt)
}

// Summary describes a finished run.
type Summary struct {
	RunID     string            `json:"run_id"`
	Status    history.RunStatus `json:"status"`
	Files     []FileResult      `json:"files"`
	Completed int               `json:"completed"`
	Elapsed   time.Duration     `json:"elapsed"`
}

// FileResult is the outcome of one file.
type FileResult struct {
	Source    string             `json:"source"`
	Output    string             `json:"output,omitempty"`
	Status    history.FileStatus `json:"status"`
	Segments  int                `json:"segments"`
	Succeeded int                `json:"succeeded"`
	Rounds    int                `json:"rounds"`
	Resumed   int                `json:"resumed,omitempty"`
	Report    *assembly.Report   `json:"report,omitempty"`
	Err       error              `json:"-"`
}

// Error returns the failure message, if any.
func (r FileResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Run converts files in order. It returns an error only when the run itself
// cannot start; per-file failures are reported in the summary.
func (c *Controller) Run(ctx context.Context, files []string) (Summary, error) {
	runID := uuid.NewString()
	c.mu.Lock()
	c.runID = runID
	c.mu.Unlock()

	ctx = logging.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, c.logger)
	started := time.Now()
	summary := Summary{RunID: runID}

	if c.store != nil {
		err := c.store.BeginRun(ctx, history.Run{
			ID:         runID,
			Direction:  history.DirectionSpeech,
			Voice:      c.opts.Batch.Voice.Voice,
			FilesTotal: len(files),
			StartedAt:  started,
		})
		if err != nil {
			return summary, fmt.Errorf("record run: %w", err)
		}
	}

	logger.Info("conversion run started",
		logging.String(logging.FieldEventType, "run_started"),
		logging.Int("files", len(files)),
		logging.String("voice", c.opts.Batch.Voice.String()),
	)
	events.Progress(c.sink, events.ScopeRun, "", 0)

	for i, file := range files {
		if c.signal.Cancelled() || ctx.Err() != nil {
			break
		}
		result := c.processFile(ctx, runID, file)
		summary.Files = append(summary.Files, result)
		if result.Status == history.FileCompleted {
			summary.Completed++
		}
		if result.Status == history.FileCancelled {
			break
		}
		events.Progress(c.sink, events.ScopeRun, "", float64(i+1)/float64(len(files)))
	}
	c.setActive("")

	switch {
	case c.signal.Cancelled() || ctx.Err() != nil:
		summary.Status = history.RunCancelled
	case summary.Completed == len(files):
		summary.Status = history.RunCompleted
	default:
		summary.Status = history.RunPartial
	}
	summary.Elapsed = time.Since(started)

	if c.store != nil {
		if err := c.store.FinishRun(context.WithoutCancel(ctx), runID, summary.Status, summary.Completed); err != nil {
			logger.Warn("failed to record run outcome",
				logging.Error(err),
				logging.String(logging.FieldEventType, "history_write_failed"),
				logging.String(logging.FieldErrorHint, "check state_dir permissions"),
				logging.String(logging.FieldImpact, "history shows the run as still running"),
			)
		}
	}
	logger.Info("conversion run finished",
		logging.String(logging.FieldEventType, "run_finished"),
		logging.String("status", string(summary.Status)),
		logging.Int("completed", summary.Completed),
		logging.Int("files", len(files)),
		logging.Duration("elapsed", summary.Elapsed.Round(time.Millisecond)),
	)
	return summary, nil
}

// failFile logs a file-level failure with its hint and emits the failed event.
func (c *Controller) failFile(logger *slog.Logger, result *FileResult, message, eventType string, err error) {
	result.Status = history.FileFailed
	result.Err = err
	logging.ErrorWithContext(logger, message, eventType,
		logging.Error(err),
		logging.String(logging.FieldErrorHint, services.Hint(err)),
		logging.String(logging.FieldImpact, "file skipped; the run continues with the next file"),
	)
	events.Notify(c.sink, events.StatusFileFailed, result.Source, fmt.Sprintf("%s: %v", message, err))
}

func removeQuietly(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
