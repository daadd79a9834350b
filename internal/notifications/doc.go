// Package notifications pushes run outcomes and failures to ntfy.
//
// NewService returns an ntfy-backed Service when notifications.ntfy_topic is
// set and a no-op otherwise, so callers never branch on configuration. Sink
// adapts the Service to the pipeline event stream: file failures and the
// first connection loss per file are delivered in the background.
package notifications
