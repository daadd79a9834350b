package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"subvoice/internal/events"
	"subvoice/internal/history"
	"subvoice/internal/language"
	"subvoice/internal/logging"
	"subvoice/internal/media"
	"subvoice/internal/services"
	"subvoice/internal/services/whisperx"
	"subvoice/internal/subtitles"
	"subvoice/internal/translate"
	"subvoice/internal/workspace"
)

// OriginalSuffix names the untranslated transcript kept in the work dir.
const OriginalSuffix = "_original"

// AudioSource probes inputs and makes their audio readable. *media.Extractor
// implements it.
type AudioSource interface {
	Probe(ctx context.Context, path string) (media.Source, error)
	Prepare(ctx context.Context, src media.Source, workDir string) (string, error)
}

// Recognizer transcribes an audio file. *whisperx.Service implements it.
type Recognizer interface {
	Transcribe(ctx context.Context, source, outputDir, language string) (whisperx.Result, error)
}

// Translator translates segments. *translate.Service implements it.
type Translator interface {
	Segments(ctx context.Context, segments []subtitles.Segment, source, target string) ([]subtitles.Segment, translate.Report, error)
}

// Options configure a Pipeline.
type Options struct {
	// TargetLanguage is the language of the written subtitles.
	TargetLanguage string
	// SourceLanguage skips detection when set.
	SourceLanguage string
	// OutputDir holds the final SRT; empty writes beside the input.
	OutputDir string
}

// Deps are the pipeline collaborators. Translator, History and Sink are
// optional; without a Translator subtitles stay in the detected language.
type Deps struct {
	Media      AudioSource
	Recognizer Recognizer
	Translator Translator
	Workspace  *workspace.Workspace
	History    *history.Store
	Sink       events.Sink
	Logger     *slog.Logger
}

// Pipeline runs the audio-to-subtitle direction.
type Pipeline struct {
	opts       Options
	media      AudioSource
	recognizer Recognizer
	translator Translator
	ws         *workspace.Workspace
	store      *history.Store
	sink       events.Sink
	logger     *slog.Logger
}

// New wires a pipeline.
func New(opts Options, deps Deps) (*Pipeline, error) {
	if deps.Media == nil || deps.Recognizer == nil || deps.Workspace == nil {
		return nil, errors.New("transcribe: pipeline requires media, recognizer and workspace")
	}
	opts.TargetLanguage = language.ToISO2(opts.TargetLanguage)
	opts.SourceLanguage = language.ToISO2(opts.SourceLanguage)
	return &Pipeline{
		opts:       opts,
		media:      deps.Media,
		recognizer: deps.Recognizer,
		translator: deps.Translator,
		ws:         deps.Workspace,
		store:      deps.History,
		sink:       events.Or(deps.Sink),
		logger:     logging.NewComponentLogger(deps.Logger, "transcribe"),
	}, nil
}

// Result is the outcome of one input.
type Result struct {
	Source       string            `json:"source"`
	Language     string            `json:"language,omitempty"`
	Target       string            `json:"target,omitempty"`
	OriginalPath string            `json:"original_path,omitempty"`
	Output       string            `json:"output,omitempty"`
	Segments     int               `json:"segments"`
	Translated   bool              `json:"translated"`
	Report       *translate.Report `json:"report,omitempty"`
	Err          error             `json:"-"`
}

// Summary describes a finished run over several inputs.
type Summary struct {
	RunID     string            `json:"run_id"`
	Status    history.RunStatus `json:"status"`
	Files     []Result          `json:"files"`
	Completed int               `json:"completed"`
	Elapsed   time.Duration     `json:"elapsed"`
}

// OutputPath returns where the subtitles for source in lang are written.
func (p *Pipeline) OutputPath(source, lang string) string {
	dir := p.opts.OutputDir
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Dir(source)
	}
	return filepath.Join(dir, stem(source)+"_"+lang+".srt")
}

func stem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Run transcribes files in order. A failing file is recorded and the run
// moves on; only cancellation stops it early.
func (p *Pipeline) Run(ctx context.Context, files []string) (Summary, error) {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, p.logger)
	started := time.Now()
	summary := Summary{RunID: runID}

	if p.store != nil {
		err := p.store.BeginRun(ctx, history.Run{
			ID:         runID,
			Direction:  history.DirectionTranscribe,
			FilesTotal: len(files),
			StartedAt:  started,
		})
		if err != nil {
			return summary, fmt.Errorf("record run: %w", err)
		}
	}

	for i, file := range files {
		if ctx.Err() != nil {
			break
		}
		res := p.runFile(ctx, runID, file)
		summary.Files = append(summary.Files, res)
		if res.Err == nil {
			summary.Completed++
		}
		events.Progress(p.sink, events.ScopeRun, "", float64(i+1)/float64(len(files)))
	}

	switch {
	case ctx.Err() != nil:
		summary.Status = history.RunCancelled
	case summary.Completed == len(files):
		summary.Status = history.RunCompleted
	default:
		summary.Status = history.RunPartial
	}
	summary.Elapsed = time.Since(started)
	if p.store != nil {
		if err := p.store.FinishRun(context.WithoutCancel(ctx), runID, summary.Status, summary.Completed); err != nil {
			logger.Debug("history run update failed", logging.Error(err))
		}
	}
	logger.Info("transcription run finished",
		logging.String(logging.FieldEventType, "run_finished"),
		logging.String("status", string(summary.Status)),
		logging.Int("completed", summary.Completed),
		logging.Int("files", len(files)),
		logging.Duration("elapsed", summary.Elapsed.Round(time.Millisecond)),
	)
	return summary, nil
}

func (p *Pipeline) runFile(ctx context.Context, runID, file string) Result {
	ctx = logging.WithFile(ctx, file)
	logger := logging.WithContext(ctx, p.logger)

	var fileID int64
	if p.store != nil {
		id, err := p.store.BeginFile(ctx, runID, file, 0)
		if err != nil {
			logger.Debug("history file insert failed", logging.Error(err))
		}
		fileID = id
	}

	res, err := p.File(ctx, file)
	status := history.FileCompleted
	if err != nil {
		status = history.FileFailed
		if ctx.Err() != nil {
			status = history.FileCancelled
		} else {
			logging.ErrorWithContext(logger, "transcription failed", "transcription_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.Hint(err)),
				logging.String(logging.FieldImpact, "no subtitles written for this file"),
			)
			events.Notify(p.sink, events.StatusFileFailed, file, err.Error())
		}
	}
	if p.store != nil && fileID != 0 {
		outcome := history.FileOutcome{
			Status:        status,
			OutputPath:    res.Output,
			SegmentsTotal: res.Segments,
			SegmentsDone:  res.Segments,
			Rounds:        1,
			Err:           err,
		}
		if err := p.store.FinishFile(context.WithoutCancel(ctx), fileID, outcome); err != nil {
			logger.Debug("history file update failed", logging.Error(err))
		}
	}
	return res
}

// File transcribes one input and writes its subtitles.
func (p *Pipeline) File(ctx context.Context, file string) (Result, error) {
	logger := logging.WithContext(logging.WithFile(ctx, file), p.logger)
	res := Result{Source: file, Target: p.opts.TargetLanguage}
	fail := func(err error) (Result, error) {
		res.Err = err
		return res, err
	}
	events.Notify(p.sink, events.StatusFileStarted, file, "transcription started")

	src, err := p.media.Probe(ctx, file)
	if err != nil {
		return fail(err)
	}
	lease, err := p.ws.Acquire(file)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = lease.Release() }()

	audio, err := p.media.Prepare(ctx, src, lease.Dir)
	if err != nil {
		return fail(err)
	}
	if audio != file {
		defer removeQuietly(audio)
	}
	events.Progress(p.sink, events.ScopeFile, file, 0.2)

	hint := p.opts.SourceLanguage
	if hint == "" {
		hint = src.Language
	}
	started := time.Now()
	recognized, err := p.recognizer.Transcribe(ctx, audio, lease.Dir, hint)
	if err != nil {
		return fail(err)
	}
	segments := ToSegments(recognized.Segments)
	if len(segments) == 0 {
		return fail(services.Wrap(services.ErrValidation, "transcribe", "recognize", "no speech recognized", nil))
	}
	res.Segments = len(segments)
	res.Language = recognized.Language
	if res.Language == "" {
		res.Language = hint
	}
	logger.Info("audio transcribed",
		logging.String(logging.FieldEventType, "transcribed"),
		logging.Int("segments", len(segments)),
		logging.String("language", res.Language),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	)
	events.Progress(p.sink, events.ScopeFile, file, 0.6)

	res.OriginalPath = filepath.Join(lease.Dir, stem(file)+OriginalSuffix+".srt")
	if err := subtitles.WriteFile(res.OriginalPath, segments); err != nil {
		return fail(err)
	}

	outLang := res.Language
	if p.needsTranslation(res.Language) {
		translated, report, err := p.translator.Segments(ctx, segments, res.Language, res.Target)
		if err != nil {
			return fail(err)
		}
		segments = translated
		res.Report = &report
		res.Translated = report.Translated > 0
		outLang = res.Target
	}
	if outLang == "" {
		outLang = "und"
	}
	res.Output = p.OutputPath(file, outLang)
	if err := subtitles.WriteFile(res.Output, segments); err != nil {
		return fail(err)
	}
	logger.Info("subtitles written",
		logging.String(logging.FieldEventType, "file_completed"),
		logging.String("output", res.Output),
		logging.Bool("translated", res.Translated),
	)
	events.Progress(p.sink, events.ScopeFile, file, 1)
	events.Notify(p.sink, events.StatusFileCompleted, file, "subtitles saved to "+res.Output)
	return res, nil
}

func (p *Pipeline) needsTranslation(detected string) bool {
	if p.translator == nil || p.opts.TargetLanguage == "" {
		return false
	}
	return !language.Same(detected, p.opts.TargetLanguage)
}

// ToSegments numbers recognized speech from 1 and drops empty text.
func ToSegments(recognized []whisperx.Segment) []subtitles.Segment {
	out := make([]subtitles.Segment, 0, len(recognized))
	for _, seg := range recognized {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		start := subtitles.FromSeconds(max(seg.Start, 0))
		end := max(subtitles.FromSeconds(seg.End), start)
		out = append(out, subtitles.Segment{Index: len(out) + 1, Start: start, End: end, Text: text})
	}
	return out
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}
