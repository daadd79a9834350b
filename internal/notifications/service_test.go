package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"subvoice/internal/config"
	"subvoice/internal/events"
	"subvoice/internal/logging"
	"subvoice/internal/notifications"
)

type captured struct {
	title, message, tags, priority string
}

type ntfyRecorder struct {
	mu       sync.Mutex
	requests []captured
}

func (r *ntfyRecorder) all() []captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]captured(nil), r.requests...)
}

func newNtfyServer(t *testing.T) (*httptest.Server, *ntfyRecorder) {
	t.Helper()
	rec := &ntfyRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.requests = append(rec.requests, captured{
			title:    r.Header.Get("Title"),
			message:  string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		rec.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func serviceFor(url string) notifications.Service {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = url
	return notifications.NewService(&cfg)
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if notifications.Enabled(svc) {
		t.Fatal("expected noop service")
	}
	if err := svc.NotifyFileFailed(context.Background(), "a.srt", "boom"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsRunSummaries(t *testing.T) {
	tests := []struct {
		name          string
		run           notifications.RunSummary
		expectTitle   string
		expectMessage string
		expectTags    string
	}{
		{
			name:          "completed speech run",
			run:           notifications.RunSummary{Direction: "speech", Status: "completed", Completed: 3, Total: 3, Duration: 90 * time.Second},
			expectTitle:   "subvoice - Run Complete",
			expectMessage: "✅ Converted 3 of 3 files in 1m30s",
			expectTags:    "subvoice,speech,completed",
		},
		{
			name:          "partial transcription",
			run:           notifications.RunSummary{Direction: "transcribe", Status: "partial", Completed: 1, Total: 2, Duration: time.Second},
			expectTitle:   "subvoice - Run Complete (with errors)",
			expectMessage: "⚠️ Transcribed 1 of 2 files; 1 failed (1s)",
			expectTags:    "subvoice,transcribe,partial",
		},
		{
			name:          "cancelled",
			run:           notifications.RunSummary{Direction: "speech", Status: "cancelled", Completed: 0, Total: 4},
			expectTitle:   "subvoice - Run Cancelled",
			expectMessage: "⏹️ Cancelled after 0 of 4 files (0s)",
			expectTags:    "subvoice,speech,cancelled",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, rec := newNtfyServer(t)
			if err := serviceFor(srv.URL).NotifyRunCompleted(context.Background(), tc.run); err != nil {
				t.Fatalf("NotifyRunCompleted: %v", err)
			}
			got := rec.all()
			if len(got) != 1 {
				t.Fatalf("expected 1 request, got %d", len(got))
			}
			if got[0].title != tc.expectTitle || got[0].message != tc.expectMessage || got[0].tags != tc.expectTags {
				t.Fatalf("unexpected request %+v", got[0])
			}
		})
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic locked", http.StatusForbidden)
	}))
	defer srv.Close()
	err := serviceFor(srv.URL).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "topic locked") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestSinkForwardsFailuresAndDedupesConnectionLoss(t *testing.T) {
	srv, rec := newNtfyServer(t)
	sink := notifications.NewSink(serviceFor(srv.URL), logging.NewNop())

	events.Notify(sink, events.StatusConnectionLost, "a.srt", "lost")
	events.Notify(sink, events.StatusConnectionLost, "a.srt", "lost again")
	events.Notify(sink, events.StatusFileCompleted, "a.srt", "done")
	events.Notify(sink, events.StatusFileFailed, "b.srt", "assembly failed")
	events.Progress(sink, events.ScopeFile, "b.srt", 0.5)
	sink.Wait()

	got := rec.all()
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %+v", got)
	}
	var sawLost, sawFailed bool
	for _, req := range got {
		switch req.title {
		case "subvoice - Connection Lost":
			sawLost = strings.Contains(req.message, "a.srt")
		case "subvoice - File Failed":
			sawFailed = strings.Contains(req.message, "b.srt") && strings.Contains(req.message, "assembly failed") && req.priority == "high"
		}
	}
	if !sawLost || !sawFailed {
		t.Fatalf("unexpected notifications %+v", got)
	}
}
