package services_test

import (
	"errors"
	"strings"
	"testing"

	"subvoice/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "assembly", "encode", "ffmpeg failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	for _, fragment := range []string{"assembly", "encode", "ffmpeg failed"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in error string %q", fragment, err.Error())
		}
	}
	if got := services.Wrap(nil, "", "", "", nil); !errors.Is(got, services.ErrTransient) || !strings.Contains(got.Error(), "service failure") {
		t.Fatalf("unexpected default wrap %v", got)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{services.Wrap(services.ErrValidation, "tts", "synthesize", "empty", nil), false},
		{services.Wrap(services.ErrConfiguration, "llm", "request", "missing key", nil), false},
		{services.Wrap(services.ErrTransient, "llm", "request", "503", nil), true},
		{errors.New("plain"), true},
	}
	for _, tt := range tests {
		if got := services.Retryable(tt.err); got != tt.want {
			t.Fatalf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestHintMentionsConfigForConfigurationErrors(t *testing.T) {
	hint := services.Hint(services.Wrap(services.ErrConfiguration, "", "", "x", nil))
	if !strings.Contains(hint, "config") {
		t.Fatalf("unexpected hint %q", hint)
	}
}
