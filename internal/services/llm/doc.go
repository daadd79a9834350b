// Package llm translates subtitle lines through an OpenAI-compatible chat
// completion API.
//
// Client.Translate sends a batch of lines keyed by segment index and returns
// the translations by index; a reply that leaves any index out fails with
// ErrIncompleteTranslation so the caller can keep the original text.
// Client.HealthCheck verifies the API key and model.
//
// Requests are retried on HTTP 408/429/5xx, empty completions and network
// timeouts with doubling backoff (1s up to 10s, 5 attempts by default),
// honouring Retry-After. Non-2xx responses surface as *StatusError.
package llm
