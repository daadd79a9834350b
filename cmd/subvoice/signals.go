package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// runControl is the part of a pipeline the terminal can steer.
// *jobs.Controller implements it.
type runControl interface {
	Pause()
	Resume()
	Cancel()
}

// watchSignals derives a context for one run. The first SIGINT or SIGTERM
// asks ctrl to cancel so in-flight work finishes and artifacts stay on disk;
// the second cancels the context. SIGUSR1 pauses and SIGUSR2 resumes. With a
// nil ctrl the first interrupt cancels the context.
func watchSignals(parent context.Context, ctrl runControl, out io.Writer) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	done := make(chan struct{})
	go func() {
		interrupts := 0
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case sig := <-ch:
				handleSignal(sig, ctrl, out, &interrupts, cancel)
			}
		}
	}()

	stop := func() {
		signal.Stop(ch)
		close(done)
		cancel()
	}
	return ctx, stop
}

func handleSignal(sig os.Signal, ctrl runControl, out io.Writer, interrupts *int, cancel context.CancelFunc) {
	switch sig {
	case syscall.SIGUSR1:
		if ctrl != nil {
			ctrl.Pause()
			fmt.Fprintln(out, "Paused; send SIGUSR2 to resume")
		}
	case syscall.SIGUSR2:
		if ctrl != nil {
			ctrl.Resume()
			fmt.Fprintln(out, "Resumed")
		}
	default:
		*interrupts++
		if *interrupts == 1 && ctrl != nil {
			ctrl.Cancel()
			fmt.Fprintln(out, "Cancelling after the current batch; interrupt again to stop immediately")
			return
		}
		cancel()
	}
}
