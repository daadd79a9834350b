package notifications

import (
	"context"
	"log/slog"
	"sync"

	"subvoice/internal/events"
	"subvoice/internal/logging"
)

// Sink forwards failure events to a Service. Deliveries run in the
// background so the pipeline never waits on the network; call Wait before
// exiting. Connection loss is reported once per file.
type Sink struct {
	svc    Service
	logger *slog.Logger

	wg       sync.WaitGroup
	mu       sync.Mutex
	lostSeen map[string]struct{}
}

// NewSink returns a sink delivering through svc.
func NewSink(svc Service, logger *slog.Logger) *Sink {
	return &Sink{
		svc:      svc,
		logger:   logging.NewComponentLogger(logger, "notifications"),
		lostSeen: make(map[string]struct{}),
	}
}

func (s *Sink) Emit(e events.Event) {
	if e.Type != events.TypeStatus {
		return
	}
	var deliver func(context.Context) error
	switch e.Status {
	case events.StatusFileFailed, events.StatusFileAbandoned:
		deliver = func(ctx context.Context) error { return s.svc.NotifyFileFailed(ctx, e.File, e.Message) }
	case events.StatusConnectionLost:
		s.mu.Lock()
		_, seen := s.lostSeen[e.File]
		s.lostSeen[e.File] = struct{}{}
		s.mu.Unlock()
		if seen {
			return
		}
		deliver = func(ctx context.Context) error { return s.svc.NotifyConnectionLost(ctx, e.File) }
	default:
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := deliver(context.Background()); err != nil {
			s.logger.Debug("notification not delivered",
				logging.String(logging.FieldEventType, "notification_failed"),
				logging.String("status", string(e.Status)),
				logging.Error(err),
			)
		}
	}()
}

// Wait blocks until pending deliveries finish.
func (s *Sink) Wait() {
	s.wg.Wait()
}
