package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"subvoice/internal/config"
)

const userAgent = "subvoice/0.1"

// Service defines the notification surface used by the CLI and event sink.
type Service interface {
	NotifyRunCompleted(ctx context.Context, run RunSummary) error
	NotifyFileFailed(ctx context.Context, file, reason string) error
	NotifyConnectionLost(ctx context.Context, file string) error
	TestNotification(ctx context.Context) error
}

// RunSummary is what a finished-run notification reports.
type RunSummary struct {
	// Direction is "speech" or "transcribe".
	Direction string
	Status    string
	Completed int
	Total     int
	Duration  time.Duration
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether svc actually delivers anything.
func Enabled(svc Service) bool {
	_, noop := svc.(noopService)
	return svc != nil && !noop
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, run RunSummary) error {
	duration := run.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	verb := "Converted"
	if run.Direction == "transcribe" {
		verb = "Transcribed"
	}

	data := payload{
		title:   "subvoice - Run Complete",
		message: fmt.Sprintf("✅ %s %d of %d files in %s", verb, run.Completed, run.Total, duration),
		tags:    []string{"subvoice", run.Direction, "completed"},
	}
	switch run.Status {
	case "cancelled":
		data.title = "subvoice - Run Cancelled"
		data.message = fmt.Sprintf("⏹️ Cancelled after %d of %d files (%s)", run.Completed, run.Total, duration)
		data.tags[2] = "cancelled"
		data.priority = "low"
	case "partial":
		data.title = "subvoice - Run Complete (with errors)"
		data.message = fmt.Sprintf("⚠️ %s %d of %d files; %d failed (%s)", verb, run.Completed, run.Total, run.Total-run.Completed, duration)
		data.tags[2] = "partial"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyFileFailed(ctx context.Context, file, reason string) error {
	var builder strings.Builder
	builder.WriteString("❌ Failed: ")
	builder.WriteString(strings.TrimSpace(file))
	if reason = strings.TrimSpace(reason); reason != "" {
		builder.WriteString("\n")
		builder.WriteString(reason)
	}
	return n.send(ctx, payload{
		title:    "subvoice - File Failed",
		message:  builder.String(),
		tags:     []string{"subvoice", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyConnectionLost(ctx context.Context, file string) error {
	return n.send(ctx, payload{
		title:   "subvoice - Connection Lost",
		message: fmt.Sprintf("📡 Speech service unreachable while converting %s; retrying", strings.TrimSpace(file)),
		tags:    []string{"subvoice", "network", "warning"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "subvoice - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"subvoice", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, RunSummary) error { return nil }
func (noopService) NotifyFileFailed(context.Context, string, string) error { return nil }
func (noopService) NotifyConnectionLost(context.Context, string) error { return nil }
func (noopService) TestNotification(context.Context) error { return nil }
