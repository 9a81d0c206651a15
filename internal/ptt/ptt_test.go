package ptt_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/livevoice/internal/ptt"
)

type countingReporter struct {
	mu               sync.Mutex
	recording, done  int
	panicOnRecording bool
}

func (r *countingReporter) Recording() {
	r.mu.Lock()
	r.recording++
	p := r.panicOnRecording
	r.mu.Unlock()
	if p {
		panic("display broke")
	}
}

func (r *countingReporter) Done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done++
}

func (r *countingReporter) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording, r.done
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    ptt.Mode
		wantErr bool
	}{
		{"", ptt.ModeAuto, false},
		{"auto", ptt.ModeAuto, false},
		{" Gated ", ptt.ModeGated, false},
		{"ungated", ptt.ModeUngated, false},
		{"hold", "", true},
	}
	for _, tt := range tests {
		got, err := ptt.ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	if got := ptt.Resolve(ptt.ModeGated, 0); got != ptt.ModeGated {
		t.Errorf("explicit gated resolved to %q", got)
	}
	if got := ptt.Resolve(ptt.ModeUngated, 0); got != ptt.ModeUngated {
		t.Errorf("explicit ungated resolved to %q", got)
	}

	// A regular file is never a terminal.
	f, err := os.CreateTemp(t.TempDir(), "notatty")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if got := ptt.Resolve(ptt.ModeAuto, f.Fd()); got != ptt.ModeUngated {
		t.Errorf("auto on a file resolved to %q, want ungated", got)
	}
}

func TestListener_PressRelease(t *testing.T) {
	t.Parallel()

	gate := ptt.NewGate(false)
	rep := &countingReporter{}
	l := ptt.NewListener(gate, rep)

	l.Handle(ptt.Press)
	if !gate.Open() {
		t.Fatal("gate should be open after press")
	}
	l.Handle(ptt.Press)
	l.Handle(ptt.Release)
	if gate.Open() {
		t.Fatal("gate should be closed after release")
	}
	l.Handle(ptt.Release)

	if rec, done := rep.counts(); rec != 1 || done != 1 {
		t.Errorf("recording=%d done=%d, want 1 and 1", rec, done)
	}
}

func TestListener_Toggle(t *testing.T) {
	t.Parallel()

	gate := ptt.NewGate(false)
	l := ptt.NewListener(gate, nil)
	l.Toggle()
	if !gate.Open() {
		t.Error("first toggle should open the gate")
	}
	l.Toggle()
	if gate.Open() {
		t.Error("second toggle should close the gate")
	}
}

func TestListener_RecoversFromReporterPanic(t *testing.T) {
	t.Parallel()

	gate := ptt.NewGate(false)
	rep := &countingReporter{panicOnRecording: true}
	l := ptt.NewListener(gate, rep)

	l.Handle(ptt.Press)
	if !gate.Open() {
		t.Error("gate should be open even though the reporter panicked")
	}
	l.Handle(ptt.Release)
	if _, done := rep.counts(); done != 1 {
		t.Errorf("done = %d, want 1", done)
	}
}

func TestListener_Run(t *testing.T) {
	t.Parallel()

	gate := ptt.NewGate(false)
	l := ptt.NewListener(gate, nil)
	events := make(chan ptt.EventKind)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx, events) }()

	events <- ptt.Press
	deadline := time.Now().Add(time.Second)
	for !gate.Open() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !gate.Open() {
		t.Fatal("gate should open after press event")
	}

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Run: %v", err)
	}
	if gate.Open() {
		t.Error("gate should be closed when the listener stops")
	}
}

func TestEventKind_String(t *testing.T) {
	t.Parallel()

	if ptt.Press.String() != "press" || ptt.Release.String() != "release" {
		t.Error("unexpected event names")
	}
	if got := ptt.EventKind(7).String(); got != "EventKind(7)" {
		t.Errorf("String() = %q", got)
	}
}
