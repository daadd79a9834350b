package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"subvoice/internal/events"
)

// progressLine redraws a single status line on an interactive terminal.
// Status events end the line so they stay visible in scrollback.
type progressLine struct {
	mu    sync.Mutex
	out   io.Writer
	file  string
	run   float64
	dirty bool
}

func newProgressLine(out io.Writer) *progressLine {
	return &progressLine{out: out}
}

func (p *progressLine) Emit(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch e.Type {
	case events.TypeProgress:
		if e.Scope == events.ScopeRun {
			p.run = e.Progress
			return
		}
		p.file = e.File
		fmt.Fprintf(p.out, "\r\x1b[2K%s  %3.0f%%  (run %3.0f%%)", filepath.Base(p.file), e.Progress*100, p.run*100)
		p.dirty = true
	case events.TypeStatus:
		if e.Status == events.StatusFileStarted {
			return
		}
		p.endLine()
		name := filepath.Base(e.File)
		if name == "." {
			name = "run"
		}
		fmt.Fprintf(p.out, "%s: %s\n", name, e.Message)
	}
}

// finish terminates a pending progress line.
func (p *progressLine) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
}

func (p *progressLine) endLine() {
	if p.dirty {
		fmt.Fprintln(p.out)
		p.dirty = false
	}
}
