package config

const (
	defaultWorkDir             = "~/.local/share/subvoice/work"
	defaultStateDir            = "~/.local/share/subvoice"
	defaultLogDir              = "~/.local/share/subvoice/logs"
	defaultCacheDir            = "~/.cache/subvoice"
	defaultLogRetentionDays    = 30
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultMaxWorkers          = 15
	defaultBatchSize           = 10
	defaultRetryAttempts       = 3
	defaultMaxFileRounds       = 3
	defaultStallRounds         = 5
	defaultVoice               = "en-US-EmmaNeural"
	defaultTTSBinary           = "edge-tts"
	defaultCatalogTTLHours     = 24
	defaultCleanupDays         = 7
	defaultWhisperXModel       = "base"
	defaultTargetLanguage      = "en"
	defaultTranslationWorkers  = 5
	defaultTranslationBatch    = 10
	defaultTranslationAttempts = 3
	defaultTranslationDelay    = 2
	defaultLLMBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel            = "google/gemini-3-flash-preview"
	defaultLLMTitle            = "subvoice translator"
	defaultLLMTimeoutSeconds   = 60
	defaultNtfyTimeoutSeconds  = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir,
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			CacheDir: defaultCacheDir,
		},
		Conversion: Conversion{
			MaxWorkers:    defaultMaxWorkers,
			BatchSize:     defaultBatchSize,
			RetryAttempts: defaultRetryAttempts,
			MaxFileRounds: defaultMaxFileRounds,
			StallRounds:   defaultStallRounds,
		},
		Voice: Voice{
			Name: defaultVoice,
		},
		TTS: TTS{
			Binary:          defaultTTSBinary,
			CatalogTTLHours: defaultCatalogTTLHours,
		},
		Workspace: Workspace{
			AutoCleanup: true,
			CleanupDays: defaultCleanupDays,
		},
		Transcription: Transcription{
			WhisperXModel:  defaultWhisperXModel,
			TargetLanguage: defaultTargetLanguage,
		},
		Translation: Translation{
			Workers:           defaultTranslationWorkers,
			BatchSize:         defaultTranslationBatch,
			RetryAttempts:     defaultTranslationAttempts,
			RetryDelaySeconds: defaultTranslationDelay,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

// DefaultVoice returns the voice used when the catalog cannot be fetched.
func DefaultVoice() string {
	return defaultVoice
}
