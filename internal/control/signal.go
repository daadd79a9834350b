// Package control holds the pause/resume/cancel signal shared between the job
// controller and the batch scheduler.
package control

import (
	"context"
	"sync/atomic"
	"time"
)

// State is the tri-state run mode observed by the scheduler between rounds.
type State int32

const (
	Running State = iota
	Paused
	Cancelled
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DefaultPollInterval is how often a paused scheduler rechecks the signal.
const DefaultPollInterval = 100 * time.Millisecond

// Signal is safe for concurrent use. Cancelled is terminal: once set, Pause
// and Resume have no effect.
type Signal struct {
	state atomic.Int32
}

// NewSignal returns a signal in the Running state.
func NewSignal() *Signal {
	return &Signal{}
}

// State returns the current mode. A nil Signal is always Running and
// ignores Pause, Resume and Cancel.
func (s *Signal) State() State {
	if s == nil {
		return Running
	}
	return State(s.state.Load())
}

// Pause moves Running to Paused. It reports whether the state changed.
func (s *Signal) Pause() bool {
	if s == nil {
		return false
	}
	return s.state.CompareAndSwap(int32(Running), int32(Paused))
}

// Resume moves Paused to Running. It reports whether the state changed.
func (s *Signal) Resume() bool {
	if s == nil {
		return false
	}
	return s.state.CompareAndSwap(int32(Paused), int32(Running))
}

// Cancel moves any state to Cancelled.
func (s *Signal) Cancel() {
	if s == nil {
		return
	}
	s.state.Store(int32(Cancelled))
}

// Cancelled reports whether Cancel has been called.
func (s *Signal) Cancelled() bool {
	return s.State() == Cancelled
}

// WaitWhilePaused blocks while the signal is Paused, polling at interval. It
// returns false when the signal is cancelled or ctx ends, true once running.
func (s *Signal) WaitWhilePaused(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	for {
		switch s.State() {
		case Running:
			return true
		case Cancelled:
			return false
		}
		if err := Sleep(ctx, interval); err != nil {
			return false
		}
	}
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
