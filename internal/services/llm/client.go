package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	defaultTimeout  = 15 * time.Second
)

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Client translates subtitle lines through an OpenAI-compatible chat
// completion endpoint (OpenRouter by default).
type Client struct {
	cfg   Config
	http  *http.Client
	retry retryPolicy
}

// Option customizes the client.
type Option func(*Client)

// WithRetryMaxAttempts overrides the attempt budget per request (default 5).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.retry.attempts = attempts }
}

// WithRetryBackoff overrides the first and the largest retry delay.
func WithRetryBackoff(base, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.base = base
		c.retry.max = maxDelay
	}
}

// WithSleeper replaces the retry wait, for tests.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(c *Client) { c.retry.sleep = sleep }
}

// NewClient constructs a client from cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEndpoint
	}
	c := &Client{cfg: cfg, http: &http.Client{Timeout: timeout}, retry: defaultRetryPolicy()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TranslationPrompt is the system prompt for subtitle translation requests.
const TranslationPrompt = `You translate subtitle lines for a video.

You receive JSON with source_language, target_language and a list of lines,
each with an integer index and its text. Translate every line into the target
language. Keep the meaning, tone and approximate length of each line so it
still fits its on-screen timing. Never merge, split, drop or reorder lines.
Keep line breaks inside a line as \n. Names and numbers stay as they are.

Respond with JSON only:
{"lines":[{"index":1,"text":"translated text"}]}`

const healthPrompt = `You must respond with JSON only. Reply with {"ok":true}.`

// Line is one subtitle text keyed by its segment index.
type Line struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type translationRequest struct {
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Lines          []Line `json:"lines"`
}

type translationResponse struct {
	Lines []Line `json:"lines"`
}

// ErrIncompleteTranslation means the model answered but left lines out.
var ErrIncompleteTranslation = errors.New("llm translate: incomplete response")

// Translate asks the model to translate lines from source to target and
// returns the translated text keyed by index. Every requested index must come
// back non-empty. An empty source is sent as "auto".
func (c *Client) Translate(ctx context.Context, source, target string, lines []Line) (map[int]string, error) {
	if len(lines) == 0 {
		return map[int]string{}, nil
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("llm translate: target language required")
	}
	if source = strings.TrimSpace(source); source == "" {
		source = "auto"
	}
	prompt, err := json.Marshal(translationRequest{SourceLanguage: source, TargetLanguage: target, Lines: lines})
	if err != nil {
		return nil, fmt.Errorf("llm translate: encode prompt: %w", err)
	}

	var reply translationResponse
	if err := c.exchange(ctx, "llm translate", TranslationPrompt, string(prompt), &reply); err != nil {
		return nil, err
	}

	out := make(map[int]string, len(lines))
	for _, line := range reply.Lines {
		if text := strings.TrimSpace(line.Text); text != "" {
			out[line.Index] = text
		}
	}
	var missing []int
	for _, line := range lines {
		if _, ok := out[line.Index]; !ok {
			missing = append(missing, line.Index)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing indices %v", ErrIncompleteTranslation, missing)
	}
	return out, nil
}

// HealthCheck sends a one-line request to verify the API key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	var reply struct {
		OK bool `json:"ok"`
	}
	if err := c.exchange(ctx, "llm health", healthPrompt, "ping", &reply); err != nil {
		return err
	}
	if !reply.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

// StatusError is a non-2xx response from the completion endpoint.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// emptyContentError is a 2xx completion without usable content. It is
// retried since providers return it under load.
type emptyContentError struct {
	op           string
	finishReason string
	refusal      string
	snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("%s: empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.op, e.finishReason, e.refusal, e.snippet)
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type replyMessage struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

type chatResponse struct {
	Choices []struct {
		Message replyMessage `json:"message"`
		// Some providers answer with the streaming shape even when
		// stream=false.
		Delta        replyMessage `json:"delta"`
		FinishReason string       `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// exchange sends system and user prompts, retrying per the client's policy,
// and decodes the JSON object in the reply into out.
func (c *Client) exchange(ctx context.Context, op, system, user string, out any) error {
	if c.cfg.APIKey == "" {
		return fmt.Errorf("%s: api key required", op)
	}
	request := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(system)},
			{Role: "user", Content: strings.TrimSpace(user)},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	for attempt := 1; ; attempt++ {
		content, err := c.post(ctx, op, request)
		if err == nil {
			if err := decodeObject(content, out); err != nil {
				return fmt.Errorf("%s: parse payload: %w", op, err)
			}
			return nil
		}
		delay, retry := c.retry.next(ctx, err, attempt)
		if !retry {
			if attempt > 1 {
				return fmt.Errorf("%s: failed after %d attempts: %w", op, attempt, err)
			}
			return err
		}
		if err := c.retry.wait(ctx, delay); err != nil {
			return err
		}
	}
}

// post performs one HTTP round trip and returns the reply content.
func (c *Client) post(ctx context.Context, op string, request chatRequest) (string, error) {
	encoded, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("llm request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: http error (timeout=%s): %w", c.http.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("llm request: decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("llm request: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	empty := &emptyContentError{op: op, snippet: snippet(string(body))}
	for _, choice := range completion.Choices {
		for _, msg := range []replyMessage{choice.Message, choice.Delta} {
			if content := strings.TrimSpace(msg.Content); content != "" {
				return content, nil
			}
			if empty.refusal == "" {
				empty.refusal = strings.TrimSpace(msg.Refusal)
			}
		}
		if empty.finishReason == "" {
			empty.finishReason = strings.TrimSpace(choice.FinishReason)
		}
	}
	return "", empty
}
