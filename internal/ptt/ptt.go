// Package ptt implements push-to-talk: a [Gate] that decides whether
// captured audio is forwarded, and a [Listener] that opens and closes it in
// response to key events.
//
// Terminals do not report key releases, so interactive front ends usually
// drive the listener with [Listener.Toggle]: the first press opens the gate,
// the next one closes it.
package ptt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-isatty"
)

// Gate is the shared recording flag. The capture loop reads it for every
// frame; only the listener writes it.
type Gate struct {
	open atomic.Bool
}

// NewGate returns a gate in the given state.
func NewGate(open bool) *Gate {
	g := &Gate{}
	g.open.Store(open)
	return g
}

// Open reports whether audio should currently be forwarded.
func (g *Gate) Open() bool { return g.open.Load() }

// set stores v and reports whether the state changed.
func (g *Gate) set(v bool) bool { return g.open.Swap(v) != v }

// Mode selects how the gate is driven.
type Mode string

const (
	// ModeAuto picks gated when stdin is a terminal, ungated otherwise.
	ModeAuto Mode = "auto"
	// ModeGated forwards audio only while the talk key is active.
	ModeGated Mode = "gated"
	// ModeUngated forwards all captured audio.
	ModeUngated Mode = "ungated"
)

// ParseMode validates s. The empty string means [ModeAuto].
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeGated, ModeUngated:
		return m, nil
	default:
		return "", fmt.Errorf("ptt: unknown mode %q (want auto, gated or ungated)", s)
	}
}

// Resolve turns [ModeAuto] into a concrete mode by checking whether fd is an
// interactive terminal. Other modes are returned unchanged.
func Resolve(m Mode, fd uintptr) Mode {
	if m != ModeAuto {
		return m
	}
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return ModeGated
	}
	return ModeUngated
}

// EventKind distinguishes key presses from releases.
type EventKind int

const (
	Press EventKind = iota
	Release
)

// String returns "press" or "release".
func (k EventKind) String() string {
	switch k {
	case Press:
		return "press"
	case Release:
		return "release"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Reporter is told when recording starts and stops.
type Reporter interface {
	Recording()
	Done()
}

// Listener translates key events into gate transitions.
type Listener struct {
	gate     *Gate
	reporter Reporter
}

// NewListener returns a Listener driving gate. reporter may be nil.
func NewListener(gate *Gate, reporter Reporter) *Listener {
	return &Listener{gate: gate, reporter: reporter}
}

// Handle applies one event. A press opens the gate and a release closes it;
// repeated events in the same direction are ignored. A panicking reporter
// is recovered and logged so the listener keeps working.
func (l *Listener) Handle(kind EventKind) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ptt: event handler panicked", "event", kind.String(), "panic", r)
		}
	}()

	switch kind {
	case Press:
		if l.gate.set(true) && l.reporter != nil {
			l.reporter.Recording()
		}
	case Release:
		if l.gate.set(false) && l.reporter != nil {
			l.reporter.Done()
		}
	default:
		slog.Warn("ptt: ignoring unknown event", "event", kind.String())
	}
}

// Toggle presses when the gate is closed and releases when it is open.
func (l *Listener) Toggle() {
	if l.gate.Open() {
		l.Handle(Release)
	} else {
		l.Handle(Press)
	}
}

// Run handles events until ctx is done or events is closed. The gate is
// closed on return.
func (l *Listener) Run(ctx context.Context, events <-chan EventKind) error {
	defer l.gate.set(false)
	for {
		select {
		case <-ctx.Done():
			return nil
		case kind, ok := <-events:
			if !ok {
				return nil
			}
			l.Handle(kind)
		}
	}
}
