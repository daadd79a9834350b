package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"subvoice/internal/control"
	"subvoice/internal/logging"
	"subvoice/internal/subtitles"
)

// ErrorKind classifies a failed synthesis.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindConnectivityLost means the network dropped; the caller should cool
	// down and retry the segment in a later round.
	KindConnectivityLost
	// KindExhausted means every attempt failed for a non-network reason.
	KindExhausted
	// KindCancelled means ctx ended before the segment finished.
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConnectivityLost:
		return "connectivity_lost"
	case KindExhausted:
		return "exhausted"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ConversionResult is the outcome of one Synthesize call for one segment.
type ConversionResult struct {
	SegmentIndex int
	ArtifactPath string
	Success      bool
	Kind         ErrorKind
	Err          error
	Attempts     int
}

const (
	defaultConnectivityDelay = time.Second
	defaultBackoffUnit       = time.Second
	maxBackoffUnits          = 2
)

// Client wraps a Backend with retry, capped backoff and failure classification.
type Client struct {
	backend           Backend
	logger            *slog.Logger
	connectivityDelay time.Duration
	backoffUnit       time.Duration
}

// NewClient returns a client around backend.
func NewClient(backend Backend, logger *slog.Logger) *Client {
	return &Client{
		backend:           backend,
		logger:            logging.NewComponentLogger(logger, "tts"),
		connectivityDelay: defaultConnectivityDelay,
		backoffUnit:       defaultBackoffUnit,
	}
}

// WithDelays overrides the connectivity pause and the backoff unit.
func (c *Client) WithDelays(connectivity, backoffUnit time.Duration) *Client {
	c.connectivityDelay = connectivity
	c.backoffUnit = backoffUnit
	return c
}

// Backoff returns the wait before retry number attempt+1: attempt units,
// capped at two.
func Backoff(attempt int, unit time.Duration) time.Duration {
	return time.Duration(min(max(attempt, 0), maxBackoffUnits)) * unit
}

// Synthesize converts one segment, trying up to maxAttempts times. A
// connectivity failure returns after a short pause without using the remaining
// attempts so the caller can retry the segment wholesale later.
func (c *Client) Synthesize(ctx context.Context, seg subtitles.Segment, voice VoiceProfile, outputPath string, maxAttempts int) ConversionResult {
	result := ConversionResult{SegmentIndex: seg.Index, ArtifactPath: outputPath}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	logger := c.logger.With(logging.Segment(seg.Index))
	req := Request{Text: seg.Text, Voice: voice, OutputPath: outputPath}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			result.Kind = KindCancelled
			result.Err = err
			return result
		}
		result.Attempts = attempt + 1
		err := c.backend.Synthesize(ctx, req)
		if err == nil {
			result.Success = true
			result.Kind = KindNone
			result.Err = nil
			return result
		}
		result.Err = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			result.Kind = KindCancelled
			return result
		}
		if IsConnectivityError(err) {
			logger.Debug("synthesis lost connectivity", logging.Int("attempt", attempt+1), logging.Error(err))
			result.Kind = KindConnectivityLost
			if sleepErr := control.Sleep(ctx, c.connectivityDelay); sleepErr != nil {
				result.Kind = KindCancelled
			}
			return result
		}
		if attempt == maxAttempts-1 {
			result.Kind = KindExhausted
			result.Err = fmt.Errorf("failed after %d attempts: %w", maxAttempts, err)
			return result
		}
		logger.Debug("synthesis attempt failed; retrying",
			logging.Int("attempt", attempt+1),
			logging.Int("max_attempts", maxAttempts),
			logging.Error(err),
		)
		if err := control.Sleep(ctx, Backoff(attempt, c.backoffUnit)); err != nil {
			result.Kind = KindCancelled
			result.Err = err
			return result
		}
	}
	result.Kind = KindExhausted
	return result
}
