package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func completionServer(t *testing.T, choice map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{"choices": []any{choice}}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func messageChoice(content string) map[string]any {
	return map[string]any{"message": map[string]any{"content": content}}
}

func TestClientHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected auth header %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{messageChoice(`{"ok":true}`)}})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server := completionServer(t, messageChoice("```json\n{\"ok\":true}\n```"))
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	err := client.HealthCheck(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized || statusErr.Temporary() {
		t.Fatalf("expected permanent 401 status error, got %v", err)
	}
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := client.Translate(context.Background(), "en", "de", []Line{{Index: 1, Text: "Hi"}}); err == nil || !strings.Contains(err.Error(), "api key") {
		t.Fatalf("expected api key error, got %v", err)
	}
}

func TestTranslateReturnsLinesByIndex(t *testing.T) {
	var got translationRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Content != strings.TrimSpace(TranslationPrompt) {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		if err := json.Unmarshal([]byte(req.Messages[1].Content), &got); err != nil {
			t.Errorf("decode user prompt: %v", err)
		}
		content := "```json\n{\"lines\":[{\"index\":3,\"text\":\"Hola\"},{\"index\":7,\"text\":\"Adiós\"}]}\n```"
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{messageChoice(content)}})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	out, err := client.Translate(context.Background(), "en", "es", []Line{{Index: 3, Text: "Hello"}, {Index: 7, Text: "Goodbye"}})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out[3] != "Hola" || out[7] != "Adiós" {
		t.Fatalf("unexpected translation %v", out)
	}
	if got.SourceLanguage != "en" || got.TargetLanguage != "es" || len(got.Lines) != 2 {
		t.Fatalf("unexpected prompt payload %+v", got)
	}
}

func TestTranslateRejectsMissingLines(t *testing.T) {
	server := completionServer(t, messageChoice(`{"lines":[{"index":1,"text":"Bonjour"}]}`))
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	_, err := client.Translate(context.Background(), "", "fr", []Line{{Index: 1, Text: "Hello"}, {Index: 2, Text: "Bye"}})
	if !errors.Is(err, ErrIncompleteTranslation) || !strings.Contains(err.Error(), "[2]") {
		t.Fatalf("expected incomplete translation error, got %v", err)
	}
}

func TestTranslateAcceptsProseAroundPayload(t *testing.T) {
	server := completionServer(t, messageChoice("Here you go:\n{\"lines\":[{\"index\":4,\"text\":\"-Non.\"}]}\nEnjoy!"))
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	out, err := client.Translate(context.Background(), "en", "fr", []Line{{Index: 4, Text: "-No."}})
	if err != nil || out[4] != "-Non." {
		t.Fatalf("unexpected result %v, %v", out, err)
	}
}

func TestTranslateSendsAutoForUnknownSource(t *testing.T) {
	var got translationRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.Unmarshal([]byte(req.Messages[1].Content), &got)
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{messageChoice(`{"lines":[{"index":1,"text":"Hallo"}]}`)}})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if _, err := client.Translate(context.Background(), " ", "de", []Line{{Index: 1, Text: "Hello"}}); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got.SourceLanguage != "auto" {
		t.Fatalf("expected auto source, got %q", got.SourceLanguage)
	}
}

func TestHealthCheckAcceptsDeltaContent(t *testing.T) {
	server := completionServer(t, map[string]any{"delta": map[string]any{"content": `{"ok":true}`}})
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestEmptyContentErrorHasSnippet(t *testing.T) {
	server := completionServer(t, map[string]any{"finish_reason": "stop", "message": map[string]any{"content": ""}})
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
	)
	err := client.HealthCheck(context.Background())
	if err == nil {
		t.Fatal("expected health check to fail")
	}
	for _, want := range []string{"empty content", `finish_reason="stop"`, "response_snippet=", "failed after 5 attempts"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := retryPolicy{attempts: 10, base: time.Second, max: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := p.backoff(i + 1); got != w {
			t.Errorf("backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
	ctx := context.Background()
	if _, retry := p.next(ctx, &StatusError{StatusCode: http.StatusBadRequest}, 1); retry {
		t.Error("400 should not be retried")
	}
	if d, retry := p.next(ctx, &StatusError{StatusCode: http.StatusServiceUnavailable, RetryAfter: time.Minute}, 1); !retry || d != 5*time.Second {
		t.Errorf("503 with Retry-After: got %s, %v", d, retry)
	}
	if _, retry := p.next(ctx, &emptyContentError{}, 10); retry {
		t.Error("last attempt should not be retried")
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{messageChoice(`{"lines":[{"index":1,"text":"Ciao"}]}`)}})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	out, err := client.Translate(context.Background(), "en", "it", []Line{{Index: 1, Text: "Hello"}})
	if err != nil || out[1] != "Ciao" {
		t.Fatalf("unexpected result %v, %v", out, err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientRetriesOnEmptyContentThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		content := ""
		if calls >= 3 {
			content = `{"ok":true}`
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{messageChoice(content)}})
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(5),
	)
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}
