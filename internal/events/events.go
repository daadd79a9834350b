// Package events carries structured progress, status and log events from the
// conversion pipeline to whoever is watching: the console renderer, the log,
// or a test.
package events

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"subvoice/internal/logging"
)

// Type classifies an event.
type Type string

const (
	TypeLog      Type = "log"
	TypeProgress Type = "progress"
	TypeStatus   Type = "status"
)

// Status values carried by TypeStatus events.
type Status string

const (
	StatusConnectionLost Status = "connection_lost"
	StatusPaused         Status = "paused"
	StatusResumed        Status = "resumed"
	StatusCancelled      Status = "cancelled"
	StatusFileStarted    Status = "file_started"
	StatusFileCompleted  Status = "file_completed"
	StatusFileFailed     Status = "file_failed"
	StatusFileAbandoned  Status = "file_abandoned"
	StatusRoundRetry     Status = "round_retry"
)

// Scope says which progress fraction a TypeProgress event reports.
type Scope string

const (
	ScopeFile Scope = "file" // segments succeeded / total segments
	ScopeRun  Scope = "run"  // files finished / total files
)

// Event is one pipeline notification.
type Event struct {
	Seq      int64      `json:"seq"`
	Time     time.Time  `json:"time"`
	Type     Type       `json:"type"`
	Level    slog.Level `json:"level"`
	Status   Status     `json:"status,omitempty"`
	Scope    Scope      `json:"scope,omitempty"`
	Progress float64    `json:"progress,omitempty"`
	File     string     `json:"file,omitempty"`
	Segment  int        `json:"segment,omitempty"`
	Message  string     `json:"message,omitempty"`
	Detail   string     `json:"detail,omitempty"`
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Or returns s, or Discard when s is nil.
func Or(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

type tee []Sink

func (t tee) Emit(e Event) {
	for _, s := range t {
		s.Emit(e)
	}
}

// Tee fans events out to every non-nil sink.
func Tee(sinks ...Sink) Sink {
	out := make(tee, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// Log emits a log event.
func Log(s Sink, level slog.Level, file string, segment int, message, detail string) {
	Or(s).Emit(Event{Time: time.Now(), Type: TypeLog, Level: level, File: file, Segment: segment, Message: message, Detail: detail})
}

// Progress emits a progress fraction in [0,1].
func Progress(s Sink, scope Scope, file string, fraction float64) {
	Or(s).Emit(Event{Time: time.Now(), Type: TypeProgress, Level: slog.LevelInfo, Scope: scope, File: file, Progress: fraction})
}

// Notify emits a status change.
func Notify(s Sink, status Status, file, message string) {
	level := slog.LevelInfo
	switch status {
	case StatusConnectionLost, StatusFileAbandoned:
		level = slog.LevelWarn
	case StatusFileFailed:
		level = slog.LevelError
	}
	Or(s).Emit(Event{Time: time.Now(), Type: TypeStatus, Level: level, Status: status, File: file, Message: message})
}

// LogSink writes log and status events to a slog logger. Progress events are
// sampled so a long file does not flood the log.
type LogSink struct {
	logger  *slog.Logger
	mu      sync.Mutex
	sampler *logging.ProgressSampler
}

// NewLogSink returns a sink writing through logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logging.NewComponentLogger(logger, "events"), sampler: logging.NewProgressSampler(10)}
}

func (l *LogSink) Emit(e Event) {
	attrs := make([]logging.Attr, 0, 5)
	if e.File != "" {
		attrs = append(attrs, logging.File(e.File))
	}
	if e.Segment > 0 {
		attrs = append(attrs, logging.Segment(e.Segment))
	}
	switch e.Type {
	case TypeProgress:
		if e.Scope != ScopeFile {
			return
		}
		l.mu.Lock()
		emit := l.sampler.ShouldLog(e.Progress*100, e.File)
		l.mu.Unlock()
		if !emit {
			return
		}
		attrs = append(attrs, logging.String("percent", formatPercent(e.Progress)))
		l.logger.Info("conversion progress", logging.Args(attrs...)...)
	case TypeStatus:
		attrs = append(attrs, logging.String(logging.FieldEventType, string(e.Status)))
		msg := e.Message
		if msg == "" {
			msg = string(e.Status)
		}
		l.logger.Log(context.Background(), e.Level, msg, logging.Args(attrs...)...)
	default:
		if e.Detail != "" {
			attrs = append(attrs, logging.String("detail", e.Detail))
		}
		l.logger.Log(context.Background(), e.Level, e.Message, logging.Args(attrs...)...)
	}
}

func formatPercent(fraction float64) string {
	pct := int(fraction*100 + 0.5)
	return strconv.Itoa(max(0, min(pct, 100))) + "%"
}

// Recorder keeps a bounded, sequenced history of events. Tests use it to
// assert on pipeline behaviour; the CLI uses it to summarise a run.
type Recorder struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewRecorder creates a recorder holding at most maxEvents (500 when <= 0).
func NewRecorder(maxEvents int) *Recorder {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &Recorder{maxEvents: maxEvents, events: make([]Event, 0, min(maxEvents, 64))}
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	e.Seq = r.nextSeq
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	r.events = append(r.events, e)
	if len(r.events) > r.maxEvents {
		trim := len(r.events) - r.maxEvents
		r.events = append([]Event(nil), r.events[trim:]...)
	}
}

// Since returns events with sequence strictly greater than seq.
func (r *Recorder) Since(seq int64) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Events returns every retained event.
func (r *Recorder) Events() []Event {
	return r.Since(0)
}

// WithStatus returns retained status events matching status.
func (r *Recorder) WithStatus(status Status) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == TypeStatus && e.Status == status {
			out = append(out, e)
		}
	}
	return out
}
