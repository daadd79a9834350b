// Package tts turns subtitle text into speech clips.
//
// A Backend performs one synthesis call; EdgeBackend does so by running the
// edge-tts command. Client layers attempts, a backoff capped at two units,
// and failure classification on top: a lost network returns early as
// KindConnectivityLost so the batch scheduler can cool down and retry the
// segment later, while other errors use up the attempt budget and end as
// KindExhausted.
//
// Catalog keeps the list of available voices in a JSON cache refreshed once
// the TTL passes, falling back to a stale cache and then to the default voice.
package tts
