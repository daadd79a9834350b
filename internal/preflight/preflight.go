package preflight

import (
	"context"
	"strings"

	"subvoice/internal/config"
)

// MinFreeBytes is the free space a run needs in the work directory for
// segment clips and the assembled track.
const MinFreeBytes uint64 = 256 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Options select the optional checks.
type Options struct {
	// LLM sends a test completion when an api key is configured.
	LLM bool
}

// RunAll executes the filesystem checks for cfg, plus the LLM check when
// requested.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, MinFreeBytes),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir),
	}
	if strings.TrimSpace(cfg.Paths.OutputDir) != "" {
		results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	}
	if opts.LLM && cfg.GetLLM().APIKey != "" {
		results = append(results, CheckLLM(ctx, "Translation LLM", cfg.GetLLM()))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
