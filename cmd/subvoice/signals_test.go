package main

import (
	"bytes"
	"context"
	"syscall"
	"testing"
)

type fakeControl struct {
	paused, resumed, cancelled int
}

func (f *fakeControl) Pause()  { f.paused++ }
func (f *fakeControl) Resume() { f.resumed++ }
func (f *fakeControl) Cancel() { f.cancelled++ }

func TestHandleSignalTwoStageInterrupt(t *testing.T) {
	ctrl := &fakeControl{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out bytes.Buffer
	interrupts := 0

	handleSignal(syscall.SIGUSR1, ctrl, &out, &interrupts, cancel)
	handleSignal(syscall.SIGUSR2, ctrl, &out, &interrupts, cancel)
	if ctrl.paused != 1 || ctrl.resumed != 1 {
		t.Fatalf("pause/resume not forwarded: %+v", ctrl)
	}

	handleSignal(syscall.SIGINT, ctrl, &out, &interrupts, cancel)
	if ctrl.cancelled != 1 || ctx.Err() != nil {
		t.Fatalf("first interrupt should cancel gracefully: %+v ctx=%v", ctrl, ctx.Err())
	}
	handleSignal(syscall.SIGTERM, ctrl, &out, &interrupts, cancel)
	if ctx.Err() == nil {
		t.Fatal("second interrupt should cancel the context")
	}
	if ctrl.cancelled != 1 {
		t.Fatalf("graceful cancel repeated: %d", ctrl.cancelled)
	}
}

func TestHandleSignalWithoutControlCancelsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupts := 0
	handleSignal(syscall.SIGINT, nil, &bytes.Buffer{}, &interrupts, cancel)
	if ctx.Err() == nil {
		t.Fatal("expected context cancelled")
	}
}
