package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
	if s := NewProgressSampler(0); s.bucketSize != 10 || s.lastBucket != -1 {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	if s := NewProgressSampler(25); s.bucketSize != 25 {
		t.Fatalf("unexpected bucket size %v", s.bucketSize)
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "a.srt") {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(10)
	steps := []struct {
		percent float64
		file    string
		want    bool
	}{
		{0, "a.srt", true},
		{4, "a.srt", false},
		{10, "a.srt", true},
		{19.9, "a.srt", false},
		{55, "a.srt", true},
		{40, "a.srt", false},
		{100, "a.srt", true},
		{100, "a.srt", false},
		{0, "b.srt", true},
		{-1, "b.srt", false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.percent, step.file); got != step.want {
			t.Fatalf("step %d (%v%% %s): got %v want %v", i, step.percent, step.file, got, step.want)
		}
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(50, "a.srt")
	s.Reset()
	if !s.ShouldLog(50, "a.srt") {
		t.Error("expected log after reset")
	}
}
