package jobs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"subvoice/internal/assembly"
	"subvoice/internal/events"
	"subvoice/internal/fileutil"
	"subvoice/internal/history"
	"subvoice/internal/jobs"
	"subvoice/internal/logging"
	"subvoice/internal/testsupport"
	"subvoice/internal/tts"
	"subvoice/internal/workspace"
)

// toneBackend writes a WAV clip whose length comes from "tone:<ms>" text.
// fail decides, per call, whether the request should error instead.
type toneBackend struct {
	mu    sync.Mutex
	calls map[string]int
	fail  func(text string, call int) error
	after func(text string)
}

func newToneBackend() *toneBackend {
	return &toneBackend{calls: map[string]int{}}
}

func (b *toneBackend) Synthesize(_ context.Context, req tts.Request) error {
	b.mu.Lock()
	b.calls[req.Text]++
	call := b.calls[req.Text]
	b.mu.Unlock()
	if b.after != nil {
		defer b.after(req.Text)
	}
	if b.fail != nil {
		if err := b.fail(req.Text, call); err != nil {
			return err
		}
	}
	return testsupport.WriteToneFile(req.OutputPath, testsupport.ToneMillis(req.Text, 100), 1000)
}

func (b *toneBackend) count(text string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[text]
}

type fixture struct {
	controller *jobs.Controller
	store      *history.Store
	ws         *workspace.Workspace
	recorder   *events.Recorder
	dir        string
}

func newFixture(t *testing.T, backend tts.Backend, tweak func(*jobs.Options)) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ws := workspace.New(cfg.Paths.WorkDir, logging.NewNop())
	rec := events.NewRecorder(0)

	opts := jobs.OptionsFromConfig(cfg)
	opts.OutputExt = ".wav"
	opts.RoundPause = time.Millisecond
	opts.Batch.PollInterval = time.Millisecond
	opts.Batch.ConnectivityCooldown = time.Millisecond
	opts.Batch.FaultPause = time.Millisecond
	if tweak != nil {
		tweak(&opts)
	}
	client := tts.NewClient(backend, logging.NewNop()).WithDelays(time.Millisecond, time.Millisecond)
	ctrl, err := jobs.NewController(opts, jobs.Deps{
		Synth:     client,
		Assembler: assembly.NewAssembler(assembly.WAVCodec{}, logging.NewNop()),
		Workspace: ws,
		History:   store,
		Sink:      rec,
		Logger:    logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return fixture{controller: ctrl, store: store, ws: ws, recorder: rec, dir: testsupport.BaseDir(cfg)}
}

func samplesOf(t *testing.T, path string) []int {
	t.Helper()
	samples, err := (assembly.WAVCodec{}).Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return samples
}

func TestConnectivityLossStillYieldsExactTimeline(t *testing.T) {
	backend := newToneBackend()
	backend.fail = func(text string, call int) error {
		if text == "tone:1000" && call == 1 {
			return tts.ErrConnectivity
		}
		return nil
	}
	fx := newFixture(t, backend, nil)
	src := testsupport.WriteSRT(t, filepath.Join(fx.dir, "subs", "movie.srt"),
		testsupport.Segment(1, 0, 2000, "tone:2000"),
		testsupport.Segment(2, 5000, 6000, "tone:1000"),
	)

	summary, err := fx.controller.Run(context.Background(), []string{src})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Status != history.RunCompleted || len(summary.Files) != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	res := summary.Files[0]
	want := filepath.Join(fx.dir, "subs", "movie_audio.wav")
	if res.Status != history.FileCompleted || res.Output != want {
		t.Fatalf("unexpected file result %+v (err %v)", res, res.Err)
	}
	samples := samplesOf(t, want)
	if len(samples) != 6000*assembly.SamplesPerMs {
		t.Fatalf("expected 6000ms track, got %dms", len(samples)/assembly.SamplesPerMs)
	}
	for i, s := range samples {
		ms := i / assembly.SamplesPerMs
		speech := ms < 2000 || ms >= 5000
		if speech != (s != 0) {
			t.Fatalf("unexpected sample %d at %dms", s, ms)
		}
	}
	if backend.count("tone:1000") != 2 {
		t.Fatalf("expected segment 2 to be retried once, calls=%d", backend.count("tone:1000"))
	}
	if len(fx.recorder.WithStatus(events.StatusConnectionLost)) != 1 {
		t.Fatal("expected a connection lost event")
	}
	if _, err := os.Stat(fx.ws.DirFor(src)); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed after success, err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(fx.dir, "subs", "movie_audio.partial.wav")); !os.IsNotExist(err) {
		t.Fatal("partial output left behind")
	}
}

func TestCancelKeepsArtifactsAndSkipsAssembly(t *testing.T) {
	backend := newToneBackend()
	var fx fixture
	backend.after = func(text string) {
		if text == "tone:110" {
			fx.controller.Cancel()
		}
	}
	fx = newFixture(t, backend, func(o *jobs.Options) { o.Batch.BatchSize = 2 })
	first := testsupport.WriteSRT(t, filepath.Join(fx.dir, "a.srt"),
		testsupport.Segment(1, 0, 100, "tone:110"),
		testsupport.Segment(2, 100, 200, "tone:100"),
		testsupport.Segment(3, 200, 300, "tone:100"),
		testsupport.Segment(4, 300, 400, "tone:100"),
	)
	second := testsupport.WriteSRT(t, filepath.Join(fx.dir, "b.srt"), testsupport.Segment(1, 0, 100, "tone:90"))

	summary, err := fx.controller.Run(context.Background(), []string{first, second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Status != history.RunCancelled || len(summary.Files) != 1 || summary.Files[0].Status != history.FileCancelled {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if backend.count("tone:90") != 0 {
		t.Fatal("second file should not start after cancel")
	}
	if _, err := os.Stat(fx.controller.OutputPath(first)); !os.IsNotExist(err) {
		t.Fatal("cancelled file must not be assembled")
	}
	dir := fx.ws.DirFor(first)
	for _, name := range []string{"1.mp3", "2.mp3"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected in-flight clip %s kept: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "3.mp3")); !os.IsNotExist(err) {
		t.Fatal("no batch should start after cancel")
	}
	run, err := fx.store.GetRun(context.Background(), summary.RunID)
	if err != nil || run == nil || run.Status != history.RunCancelled {
		t.Fatalf("unexpected history run %+v, %v", run, err)
	}
}

func TestStalledFileIsAbandonedAndRunContinues(t *testing.T) {
	backend := newToneBackend()
	backend.fail = func(text string, _ int) error {
		if text == "tone:120" {
			return errors.New("NoAudioReceived")
		}
		return nil
	}
	fx := newFixture(t, backend, func(o *jobs.Options) {
		o.MaxFileRounds = 2
		o.StallRounds = 1
		o.Batch.RetryAttempts = 1
	})
	bad := testsupport.WriteSRT(t, filepath.Join(fx.dir, "bad.srt"),
		testsupport.Segment(1, 0, 100, "tone:100"),
		testsupport.Segment(2, 100, 200, "tone:120"),
	)
	good := testsupport.WriteSRT(t, filepath.Join(fx.dir, "good.srt"), testsupport.Segment(1, 0, 100, "tone:80"))

	summary, err := fx.controller.Run(context.Background(), []string{bad, good})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Status != history.RunPartial || summary.Completed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	abandoned := summary.Files[0]
	if abandoned.Status != history.FileAbandoned || abandoned.Rounds != 2 || abandoned.Succeeded != 1 {
		t.Fatalf("unexpected abandoned result %+v", abandoned)
	}
	if _, err := os.Stat(fx.controller.OutputPath(bad)); !os.IsNotExist(err) {
		t.Fatal("abandoned file must not be assembled")
	}
	if summary.Files[1].Status != history.FileCompleted {
		t.Fatalf("second file should complete, got %+v", summary.Files[1])
	}
	if len(fx.recorder.WithStatus(events.StatusFileAbandoned)) != 1 || len(fx.recorder.WithStatus(events.StatusRoundRetry)) != 1 {
		t.Fatal("expected abandon and round retry events")
	}
	files, _ := fx.store.Files(context.Background(), summary.RunID)
	if len(files) != 2 || files[0].Status != history.FileAbandoned || files[0].Rounds != 2 {
		t.Fatalf("unexpected history files %+v", files)
	}
}

func TestResumeReusesCheckpointedClips(t *testing.T) {
	backend := newToneBackend()
	failing := true
	backend.fail = func(text string, _ int) error {
		if failing && text == "tone:130" {
			return errors.New("NoAudioReceived")
		}
		return nil
	}
	fx := newFixture(t, backend, func(o *jobs.Options) {
		o.MaxFileRounds = 1
		o.StallRounds = 1
		o.Batch.RetryAttempts = 1
	})
	src := testsupport.WriteSRT(t, filepath.Join(fx.dir, "a.srt"),
		testsupport.Segment(1, 0, 100, "tone:100"),
		testsupport.Segment(2, 100, 200, "tone:130"),
		testsupport.Segment(3, 200, 300, "tone:90"),
	)

	first, err := fx.controller.Run(context.Background(), []string{src})
	if err != nil || first.Files[0].Status != history.FileAbandoned {
		t.Fatalf("expected abandoned first run, got %+v, %v", first, err)
	}

	failing = false
	second, err := fx.controller.Run(context.Background(), []string{src})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := second.Files[0]
	if res.Status != history.FileCompleted || res.Resumed != 2 {
		t.Fatalf("unexpected resumed result %+v", res)
	}
	if backend.count("tone:100") != 1 || backend.count("tone:90") != 1 {
		t.Fatalf("resumed segments were synthesized again: %v", backend.calls)
	}
	digest, err := fileutil.Digest(src)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := fx.store.Checkpoints(context.Background(), src, digest); len(got) != 0 {
		t.Fatalf("checkpoints should be cleared after assembly, got %v", got)
	}
}

func TestParseFailureIsContainedToFile(t *testing.T) {
	fx := newFixture(t, newToneBackend(), nil)
	good := testsupport.WriteSRT(t, filepath.Join(fx.dir, "good.srt"), testsupport.Segment(1, 0, 100, "tone:100"))
	empty := filepath.Join(fx.dir, "empty.srt")
	if err := os.WriteFile(empty, []byte("not a subtitle\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	summary, err := fx.controller.Run(context.Background(), []string{filepath.Join(fx.dir, "missing.srt"), empty, good})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	statuses := make([]history.FileStatus, 0, len(summary.Files))
	for _, f := range summary.Files {
		statuses = append(statuses, f.Status)
	}
	want := []history.FileStatus{history.FileFailed, history.FileFailed, history.FileCompleted}
	if !slices.Equal(statuses, want) {
		t.Fatalf("statuses %v, want %v", statuses, want)
	}
	if len(fx.recorder.WithStatus(events.StatusFileFailed)) != 2 {
		t.Fatal("expected two file failed events")
	}
}

func TestPauseAndResumeDuringRun(t *testing.T) {
	backend := newToneBackend()
	var fx fixture
	var once sync.Once
	backend.after = func(string) {
		once.Do(func() {
			fx.controller.Pause()
			go func() {
				time.Sleep(20 * time.Millisecond)
				fx.controller.Resume()
			}()
		})
	}
	fx = newFixture(t, backend, func(o *jobs.Options) { o.Batch.BatchSize = 1 })
	src := testsupport.WriteSRT(t, filepath.Join(fx.dir, "a.srt"),
		testsupport.Segment(1, 0, 100, "tone:100"),
		testsupport.Segment(2, 100, 200, "tone:100"),
	)

	summary, err := fx.controller.Run(context.Background(), []string{src})
	if err != nil || summary.Status != history.RunCompleted {
		t.Fatalf("unexpected summary %+v, %v", summary, err)
	}
	if len(fx.recorder.WithStatus(events.StatusPaused)) != 1 || len(fx.recorder.WithStatus(events.StatusResumed)) != 1 {
		t.Fatal("expected pause and resume events")
	}
}

func TestOutputPath(t *testing.T) {
	fx := newFixture(t, newToneBackend(), func(o *jobs.Options) { o.OutputDir = "/out"; o.OutputExt = "mp3" })
	if got := fx.controller.OutputPath("/subs/Show.S01E01.srt"); got != "/out/Show.S01E01_audio.mp3" {
		t.Fatalf("unexpected output path %q", got)
	}
}
