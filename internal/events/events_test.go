package events_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"subvoice/internal/events"
	"subvoice/internal/logging"
)

func TestRecorderSequencesAndTrims(t *testing.T) {
	rec := events.NewRecorder(3)
	for i := 1; i <= 5; i++ {
		events.Log(rec, slog.LevelInfo, "a.srt", i, "msg", "")
	}
	got := rec.Events()
	if len(got) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(got))
	}
	if got[0].Seq != 3 || got[2].Seq != 5 || got[2].Segment != 5 {
		t.Fatalf("unexpected retained events %+v", got)
	}
	if since := rec.Since(4); len(since) != 1 || since[0].Seq != 5 {
		t.Fatalf("unexpected Since result %+v", since)
	}
}

func TestNotifyLevelsAndFilter(t *testing.T) {
	rec := events.NewRecorder(0)
	events.Notify(rec, events.StatusConnectionLost, "a.srt", "connection lost")
	events.Notify(rec, events.StatusFileFailed, "a.srt", "")
	events.Notify(rec, events.StatusFileCompleted, "a.srt", "")

	lost := rec.WithStatus(events.StatusConnectionLost)
	if len(lost) != 1 || lost[0].Level != slog.LevelWarn {
		t.Fatalf("unexpected connection lost events %+v", lost)
	}
	if failed := rec.WithStatus(events.StatusFileFailed); len(failed) != 1 || failed[0].Level != slog.LevelError {
		t.Fatalf("unexpected failed events %+v", failed)
	}
}

func TestTeeAndNilSinks(t *testing.T) {
	a := events.NewRecorder(0)
	b := events.NewRecorder(0)
	sink := events.Tee(a, nil, b)
	events.Progress(sink, events.ScopeRun, "", 0.5)
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatal("expected both recorders to receive the event")
	}
	if single := events.Tee(nil, a); single != events.Sink(a) {
		t.Fatal("expected a single sink to be returned unwrapped")
	}
	events.Progress(nil, events.ScopeFile, "x", 1)
}

func TestLogSinkSamplesProgress(t *testing.T) {
	var buf bytes.Buffer
	sink := events.NewLogSink(slog.New(logging.NewJSONHandler(&buf, slog.LevelDebug, false)))
	for _, p := range []float64{0, 0.01, 0.02, 0.11, 0.12, 1} {
		events.Progress(sink, events.ScopeFile, "a.srt", p)
	}
	events.Progress(sink, events.ScopeRun, "", 0.5)
	if got := strings.Count(buf.String(), "conversion progress"); got != 3 {
		t.Fatalf("expected 3 sampled progress lines, got %d: %s", got, buf.String())
	}

	buf.Reset()
	events.Notify(sink, events.StatusConnectionLost, "a.srt", "internet connection lost")
	if !strings.Contains(buf.String(), `"event_type":"connection_lost"`) || !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Fatalf("unexpected status log %s", buf.String())
	}
}
