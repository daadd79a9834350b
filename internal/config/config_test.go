package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"subvoice/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SUBVOICE_LLM_API_KEY", "env-key")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "subvoice", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Paths.OutputDir != "" {
		t.Fatalf("expected empty output dir, got %q", cfg.Paths.OutputDir)
	}
	if cfg.Conversion.MaxWorkers != 15 {
		t.Fatalf("expected 15 workers, got %d", cfg.Conversion.MaxWorkers)
	}
	if cfg.Conversion.BatchSize != 10 {
		t.Fatalf("expected batch size 10, got %d", cfg.Conversion.BatchSize)
	}
	if cfg.Conversion.RetryAttempts != 3 {
		t.Fatalf("expected 3 retry attempts, got %d", cfg.Conversion.RetryAttempts)
	}
	if cfg.Voice.Name != "en-US-EmmaNeural" {
		t.Fatalf("unexpected default voice %q", cfg.Voice.Name)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Fatalf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.TTSBinary() != "edge-tts" {
		t.Fatalf("unexpected tts binary %q", cfg.TTSBinary())
	}
	if got := cfg.HistoryPath(); got != filepath.Join(tempHome, ".local", "share", "subvoice", "history.db") {
		t.Fatalf("unexpected history path %q", got)
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"work_dir":   "~/work",
			"output_dir": "~/out",
		},
		"conversion": map[string]any{
			"max_workers":    4,
			"batch_size":     2,
			"retry_attempts": 5,
		},
		"voice": map[string]any{
			"name":  "fr-FR-DeniseNeural",
			"rate":  -10,
			"pitch": 5,
		},
		"logging": map[string]any{
			"format": "JSON",
			"level":  "Warning",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if cfg.Paths.WorkDir != filepath.Join(tempHome, "work") {
		t.Fatalf("unexpected work dir %q", cfg.Paths.WorkDir)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "out") {
		t.Fatalf("unexpected output dir %q", cfg.Paths.OutputDir)
	}
	if cfg.Conversion.MaxWorkers != 4 || cfg.Conversion.BatchSize != 2 || cfg.Conversion.RetryAttempts != 5 {
		t.Fatalf("unexpected conversion settings %+v", cfg.Conversion)
	}
	if cfg.Voice.Name != "fr-FR-DeniseNeural" || cfg.Voice.Rate != -10 || cfg.Voice.Pitch != 5 {
		t.Fatalf("unexpected voice %+v", cfg.Voice)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json format, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected warn level, got %q", cfg.Logging.Level)
	}
}

func TestValidateRejectsOutOfRangeValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "workers above limit",
			mutate: func(c *config.Config) { c.Conversion.MaxWorkers = 51 },
			want:   "conversion.max_workers must be at most 50",
		},
		{
			name:   "workers zero",
			mutate: func(c *config.Config) { c.Conversion.MaxWorkers = 0 },
			want:   "conversion.max_workers must be at least 1",
		},
		{
			name:   "batch size above limit",
			mutate: func(c *config.Config) { c.Conversion.BatchSize = 101 },
			want:   "conversion.batch_size must be at most 100",
		},
		{
			name:   "retry attempts above limit",
			mutate: func(c *config.Config) { c.Conversion.RetryAttempts = 11 },
			want:   "conversion.retry_attempts must be at most 10",
		},
		{
			name:   "rate below limit",
			mutate: func(c *config.Config) { c.Voice.Rate = -101 },
			want:   "voice.rate must be at least -100",
		},
		{
			name:   "unknown log level",
			mutate: func(c *config.Config) { c.Logging.Level = "verbose" },
			want:   "logging.level must be one of",
		},
		{
			name:   "blank voice",
			mutate: func(c *config.Config) { c.Voice.Name = "" },
			want:   "voice.name must be set",
		},
		{
			name:   "bad target language",
			mutate: func(c *config.Config) { c.Transcription.TargetLanguage = "english" },
			want:   "transcription.target_language",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.WorkDir = t.TempDir()
			cfg.Paths.StateDir = t.TempDir()
			cfg.Paths.CacheDir = t.TempDir()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("unexpected error %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Conversion.MaxFileRounds != 3 {
		t.Fatalf("unexpected max_file_rounds %d", cfg.Conversion.MaxFileRounds)
	}
}

func TestEnsureDirectoriesCreatesPaths(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.Paths.CacheDir, cfg.Paths.OutputDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}
