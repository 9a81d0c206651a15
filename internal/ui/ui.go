// Package ui renders session status and transcript lines for the user.
//
// [Plain] writes one line per event and is used when stdin is not a
// terminal. [Terminal] is a bubbletea program that also reads the keyboard
// and drives push-to-talk.
package ui

import (
	"fmt"
	"io"

	"github.com/MrWong99/livevoice/internal/history"
	"github.com/MrWong99/livevoice/internal/ptt"
	"github.com/MrWong99/livevoice/internal/relay"
)

// Status is the user-visible session state.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusRecording
	StatusDone
	StatusInterrupted
)

// String returns the label shown to the user.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "Connecting..."
	case StatusConnected:
		return "Connected"
	case StatusRecording:
		return "Recording..."
	case StatusDone:
		return "Done"
	case StatusInterrupted:
		return "Interrupted"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Reporter receives every user-visible session event.
type Reporter interface {
	ptt.Reporter
	relay.Notifier

	// Connecting is called before the remote session is dialled.
	Connecting(model string)
	// Connected is called once the session is ready.
	Connected()
	// Failed is called with the error that ended the session.
	Failed(err error)
}

// FormatEntry renders a transcript line such as "[You] hello".
func FormatEntry(e history.Entry) string {
	switch e.Role {
	case history.RoleUser:
		return "[You] " + e.Text
	case history.RoleAgent:
		return "[Agent] " + e.Text
	default:
		return fmt.Sprintf("[%s] %s", e.Role, e.Text)
	}
}

// BannerInfo is shown once at startup.
type BannerInfo struct {
	Model       string
	Entries     int
	HistoryPath string
	Mode        ptt.Mode
}

// WriteBanner prints the startup banner and the controls for the mode.
func WriteBanner(w io.Writer, b BannerInfo) error {
	help := "always listening, press ctrl+c to quit"
	if b.Mode == ptt.ModeGated {
		help = "push-to-talk, press space to start and stop recording, q to quit"
	}
	_, err := fmt.Fprintf(w,
		"livevoice\n  Model:   %s\n  History: %d entries (%s)\n  Mode:    %s\n\n",
		b.Model, b.Entries, b.HistoryPath, help)
	return err
}
