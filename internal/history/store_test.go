package history_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"subvoice/internal/history"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.BeginRun(ctx, history.Run{ID: "run-1", Direction: history.DirectionSpeech, Voice: "en-US-EmmaNeural", FilesTotal: 2}); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	first, err := store.BeginFile(ctx, "run-1", "/subs/a.srt", 10)
	if err != nil {
		t.Fatalf("BeginFile: %v", err)
	}
	second, err := store.BeginFile(ctx, "run-1", "/subs/b.srt", 4)
	if err != nil {
		t.Fatalf("BeginFile: %v", err)
	}
	if err := store.FinishFile(ctx, first, history.FileOutcome{Status: history.FileCompleted, OutputPath: "/subs/a_audio.mp3", SegmentsTotal: 10, SegmentsDone: 10, Rounds: 1}); err != nil {
		t.Fatalf("FinishFile: %v", err)
	}
	if err := store.FinishFile(ctx, second, history.FileOutcome{Status: history.FileAbandoned, SegmentsTotal: 4, SegmentsDone: 3, Rounds: 3, Err: errors.New("segments still failing")}); err != nil {
		t.Fatalf("FinishFile: %v", err)
	}
	if err := store.FinishRun(ctx, "run-1", history.RunPartial, 1); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v %v", run, err)
	}
	if run.Status != history.RunPartial || run.FilesCompleted != 1 || run.FinishedAt == nil || run.Voice != "en-US-EmmaNeural" {
		t.Fatalf("unexpected run %+v", run)
	}
	files, err := store.Files(ctx, "run-1")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 2 || files[0].OutputPath != "/subs/a_audio.mp3" || files[1].Status != history.FileAbandoned || files[1].ErrorMessage != "segments still failing" {
		t.Fatalf("unexpected files %+v", files)
	}
	if missing, err := store.GetRun(ctx, "nope"); err != nil || missing != nil {
		t.Fatalf("expected nil for unknown run, got %v %v", missing, err)
	}
}

func TestRecentRunsNewestFirstAndPrune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		started := now.Add(time.Duration(i-2) * 48 * time.Hour)
		if err := store.BeginRun(ctx, history.Run{ID: id, Direction: history.DirectionSpeech, StartedAt: started}); err != nil {
			t.Fatal(err)
		}
		if err := store.FinishRun(ctx, id, history.RunCompleted, 0); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := store.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Fatalf("unexpected order %+v", runs)
	}
	removed, err := store.Prune(ctx, now.Add(-72*time.Hour))
	if err != nil || removed != 1 {
		t.Fatalf("Prune removed %d, err %v", removed, err)
	}
}

func TestCheckpointsFollowDigest(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.Checkpoint(ctx, "/subs/a.srt", "d1", []int{3, 1, 2}); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if err := store.Checkpoint(ctx, "/subs/a.srt", "d1", []int{2, 5}); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	got, err := store.Checkpoints(ctx, "/subs/a.srt", "d1")
	if err != nil || !slices.Equal(got, []int{1, 2, 3, 5}) {
		t.Fatalf("Checkpoints = %v, %v", got, err)
	}
	if stale, _ := store.Checkpoints(ctx, "/subs/a.srt", "d2"); len(stale) != 0 {
		t.Fatalf("expected no checkpoints for a new digest, got %v", stale)
	}

	if err := store.Checkpoint(ctx, "/subs/a.srt", "d2", []int{7}); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if got, _ := store.Checkpoints(ctx, "/subs/a.srt", "d2"); !slices.Equal(got, []int{7}) {
		t.Fatalf("expected old digest rows replaced, got %v", got)
	}
	if err := store.ClearCheckpoints(ctx, "/subs/a.srt"); err != nil {
		t.Fatalf("ClearCheckpoints: %v", err)
	}
	if got, _ := store.Checkpoints(ctx, "/subs/a.srt", "d2"); len(got) != 0 {
		t.Fatalf("expected cleared checkpoints, got %v", got)
	}
}

func TestMarkInterruptedClosesRunningRuns(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	if err := store.BeginRun(ctx, history.Run{ID: "crashed", Direction: history.DirectionTranscribe}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.BeginFile(ctx, "crashed", "/v/a.mkv", 0); err != nil {
		t.Fatal(err)
	}
	n, err := store.MarkInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("MarkInterrupted = %d, %v", n, err)
	}
	run, _ := store.GetRun(ctx, "crashed")
	if run.Status != history.RunCancelled {
		t.Fatalf("expected cancelled, got %s", run.Status)
	}
	files, _ := store.Files(ctx, "crashed")
	if files[0].Status != history.FileCancelled {
		t.Fatalf("expected file cancelled, got %s", files[0].Status)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.BeginRun(context.Background(), history.Run{ID: "r", Direction: history.DirectionSpeech}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := history.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if run, err := reopened.GetRun(context.Background(), "r"); err != nil || run == nil {
		t.Fatalf("expected persisted run, got %v %v", run, err)
	}
}
