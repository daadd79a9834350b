package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRanges(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateVoice(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	return nil
}

// validateRanges applies the struct tag rules and reports the first violation
// using the TOML key path, e.g. "conversion.max_workers must be at most 50".
func (c *Config) validateRanges() error {
	err := structValidator().Struct(c)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validate config: %w", err)
	}
	fe := validationErrors[0]
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "min":
		return fmt.Errorf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Errorf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s (got %q)", field, strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	default:
		return fmt.Errorf("%s failed %s validation", field, fe.Tag())
	}
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		return errors.New("paths.cache_dir must be set")
	}
	return nil
}

func (c *Config) validateVoice() error {
	if strings.TrimSpace(c.Voice.Name) == "" {
		return errors.New("voice.name must be set")
	}
	if strings.ContainsAny(c.Voice.Name, " \t\n") {
		return fmt.Errorf("voice.name %q must not contain whitespace", c.Voice.Name)
	}
	if strings.TrimSpace(c.TTS.Binary) == "" {
		return errors.New("tts.binary must be set")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	lang := c.Transcription.TargetLanguage
	if len(lang) < 2 || len(lang) > 3 {
		return fmt.Errorf("transcription.target_language %q must be a two or three letter language code", lang)
	}
	for _, r := range lang {
		if r < 'a' || r > 'z' {
			return fmt.Errorf("transcription.target_language %q must be a two or three letter language code", lang)
		}
	}
	return nil
}
