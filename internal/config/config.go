package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	CacheDir  string `toml:"cache_dir"`
	OutputDir string `toml:"output_dir"`
}

// Conversion contains the subtitle-to-speech batching knobs.
type Conversion struct {
	MaxWorkers    int `toml:"max_workers" validate:"min=1,max=50"`
	BatchSize     int `toml:"batch_size" validate:"min=1,max=100"`
	RetryAttempts int `toml:"retry_attempts" validate:"min=1,max=10"`
	// MaxFileRounds bounds how many times a file's retry loop is restarted
	// before the file is abandoned. Zero means keep retrying until cancelled.
	MaxFileRounds int `toml:"max_file_rounds" validate:"min=0"`
	// StallRounds is how many consecutive rounds may pass without a segment
	// succeeding before the current retry loop gives up. Zero disables it.
	StallRounds int `toml:"stall_rounds" validate:"min=0,max=100"`
}

// Voice contains the speech synthesis voice profile.
type Voice struct {
	Name   string `toml:"name"`
	Rate   int    `toml:"rate" validate:"min=-100,max=100"`
	Volume int    `toml:"volume" validate:"min=-100,max=100"`
	Pitch  int    `toml:"pitch" validate:"min=-100,max=100"`
}

// TTS contains configuration for the synthesis backend and its voice catalog.
type TTS struct {
	Binary          string `toml:"binary"`
	CatalogTTLHours int    `toml:"catalog_ttl_hours" validate:"min=1"`
}

// Workspace contains configuration for per-file artifact directories.
type Workspace struct {
	AutoCleanup bool `toml:"auto_cleanup"`
	CleanupDays int  `toml:"cleanup_days" validate:"min=0"`
}

// Transcription contains configuration for the audio-to-subtitle direction.
type Transcription struct {
	WhisperXModel       string `toml:"whisperx_model"`
	WhisperXCUDAEnabled bool   `toml:"whisperx_cuda_enabled"`
	TargetLanguage      string `toml:"target_language"`
}

// Translation contains configuration for subtitle translation.
type Translation struct {
	Workers           int `toml:"workers" validate:"min=1,max=20"`
	BatchSize         int `toml:"batch_size" validate:"min=1,max=100"`
	RetryAttempts     int `toml:"retry_attempts" validate:"min=1,max=10"`
	RetryDelaySeconds int `toml:"retry_delay_seconds" validate:"min=0"`
}

// LLM contains connection settings for the chat completion API used for translation.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"min=0"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format" validate:"oneof=console json"`
	Level         string `toml:"level" validate:"oneof=debug info warn error"`
	RetentionDays int    `toml:"retention_days" validate:"min=0"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds" validate:"min=0,max=120"`
}

// Config encapsulates all configuration values for subvoice.
//
// Configuration sections by subsystem:
//   - Paths: work, state, log, cache and output directories
//   - Conversion: worker pool size, batch size and retry budget
//   - Voice: voice identifier and rate/volume/pitch adjustments
//   - TTS: synthesis backend binary and voice catalog TTL
//   - Workspace: artifact cleanup and retention
//   - Transcription: WhisperX model and default target language
//   - Translation: translation batching and retry settings
//   - LLM: chat completion connection settings
//   - Notifications: ntfy topic for run and failure alerts
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Conversion    Conversion    `toml:"conversion"`
	Voice         Voice         `toml:"voice"`
	TTS           TTS           `toml:"tts"`
	Workspace     Workspace     `toml:"workspace"`
	Transcription Transcription `toml:"transcription"`
	Translation   Translation   `toml:"translation"`
	LLM           LLM           `toml:"llm"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/subvoice/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("subvoice.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes into.
// OutputDir is only created when configured.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.StateDir, c.Paths.LogDir, c.Paths.CacheDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		if err := os.MkdirAll(c.Paths.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output directory %q: %w", c.Paths.OutputDir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for audio extraction and encoding.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// TTSBinary returns the synthesis CLI, falling back to edge-tts.
func (c *Config) TTSBinary() string {
	if c == nil || strings.TrimSpace(c.TTS.Binary) == "" {
		return defaultTTSBinary
	}
	return strings.TrimSpace(c.TTS.Binary)
}

// HistoryPath returns the location of the run history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// VoiceCatalogPath returns the location of the cached voice list.
func (c *Config) VoiceCatalogPath() string {
	return filepath.Join(c.Paths.CacheDir, "voices.json")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the chat completion settings used by the translator.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
