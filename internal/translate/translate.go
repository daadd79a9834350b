package translate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"subvoice/internal/config"
	"subvoice/internal/control"
	"subvoice/internal/logging"
	"subvoice/internal/services/llm"
	"subvoice/internal/subtitles"
)

// Translator translates indexed lines. *llm.Client implements it.
type Translator interface {
	Translate(ctx context.Context, source, target string, lines []llm.Line) (map[int]string, error)
}

// Options control batching and retries.
type Options struct {
	Workers       int
	BatchSize     int
	RetryAttempts int
	RetryDelay    time.Duration
}

// OptionsFromConfig maps the translation section of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Workers:       cfg.Translation.Workers,
		BatchSize:     cfg.Translation.BatchSize,
		RetryAttempts: cfg.Translation.RetryAttempts,
		RetryDelay:    time.Duration(cfg.Translation.RetryDelaySeconds) * time.Second,
	}
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 5
	}
	if o.BatchSize < 1 {
		o.BatchSize = 10
	}
	if o.RetryAttempts < 1 {
		o.RetryAttempts = 1
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	return o
}

// Report summarizes a translation pass.
type Report struct {
	Batches    int `json:"batches"`
	Translated int `json:"translated"`
	// FellBack counts lines left in the source language.
	FellBack int `json:"fell_back"`
}

// Service translates subtitle segments.
type Service struct {
	translator Translator
	opts       Options
	logger     *slog.Logger
}

// New wires a Service.
func New(translator Translator, opts Options, logger *slog.Logger) *Service {
	return &Service{
		translator: translator,
		opts:       opts.withDefaults(),
		logger:     logging.NewComponentLogger(logger, "translate"),
	}
}

type batchResult struct {
	batch int
	texts map[int]string
	err   error
}

// Segments returns a copy of segments with text translated from source to
// target. Timing and order are unchanged. Only cancellation is an error;
// batches that fail every attempt keep their original text.
func (s *Service) Segments(ctx context.Context, segments []subtitles.Segment, source, target string) ([]subtitles.Segment, Report, error) {
	out := append([]subtitles.Segment(nil), segments...)
	batches := chunk(len(out), s.opts.BatchSize)
	report := Report{Batches: len(batches)}
	if len(batches) == 0 {
		return out, report, nil
	}

	jobs := make(chan int)
	results := make(chan batchResult, len(batches))
	var wg sync.WaitGroup
	for range min(s.opts.Workers, len(batches)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				texts, err := s.translateBatch(ctx, out, batches[i], source, target, i)
				results <- batchResult{batch: i, texts: texts, err: err}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for i := range batches {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()
	wg.Wait()
	close(results)

	if err := ctx.Err(); err != nil {
		return nil, report, err
	}
	for res := range results {
		if res.err != nil {
			report.FellBack += len(batches[res.batch])
			continue
		}
		for _, pos := range batches[res.batch] {
			if text, ok := res.texts[out[pos].Index]; ok {
				out[pos].Text = text
				report.Translated++
			} else {
				report.FellBack++
			}
		}
	}

	s.logger.Info("translation finished",
		logging.String(logging.FieldEventType, "translation_finished"),
		logging.String("source_language", source),
		logging.String("target_language", target),
		logging.Int("batches", report.Batches),
		logging.Int("translated", report.Translated),
		logging.Int("fell_back", report.FellBack),
	)
	return out, report, nil
}

// chunk splits positions [0,n) into consecutive batches of size.
func chunk(n, size int) [][]int {
	var batches [][]int
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		batch := make([]int, 0, end-start)
		for pos := start; pos < end; pos++ {
			batch = append(batch, pos)
		}
		batches = append(batches, batch)
	}
	return batches
}

func (s *Service) translateBatch(ctx context.Context, segments []subtitles.Segment, batch []int, source, target string, n int) (map[int]string, error) {
	request := make([]llm.Line, 0, len(batch))
	for _, pos := range batch {
		request = append(request, llm.Line{Index: segments[pos].Index, Text: segments[pos].Text})
	}
	var lastErr error
	for attempt := 1; attempt <= s.opts.RetryAttempts; attempt++ {
		texts, err := s.translator.Translate(ctx, source, target, request)
		if err == nil {
			return texts, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Debug("translation attempt failed",
			logging.Int("batch", n),
			logging.Int("attempt", attempt),
			logging.Error(err),
		)
		if attempt < s.opts.RetryAttempts {
			if err := control.Sleep(ctx, s.opts.RetryDelay); err != nil {
				return nil, err
			}
		}
	}
	logging.WarnWithContext(s.logger, "translation batch failed; keeping original text", "translation_fallback",
		logging.Int("batch", n),
		logging.Int("lines", len(batch)),
		logging.Int("attempts", s.opts.RetryAttempts),
		logging.Error(lastErr),
		logging.String(logging.FieldErrorHint, "check llm.api_key, llm.model and network access"),
		logging.String(logging.FieldImpact, "these lines stay in the source language"),
	)
	return nil, fmt.Errorf("translate batch %d: %w", n, lastErr)
}
