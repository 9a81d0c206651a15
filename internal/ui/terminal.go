package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/livevoice/internal/history"
	"github.com/MrWong99/livevoice/internal/ptt"
)

// StatusMsg changes the status line.
type StatusMsg Status

// EntryMsg prints a finalized transcript entry above the status line.
type EntryMsg history.Entry

// ErrorMsg prints a session error.
type ErrorMsg struct{ Err error }

type connectingMsg string

// Model is the bubbletea model behind [Terminal].
type Model struct {
	status   Status
	model    string
	gated    bool
	toggle   func() bool
	quitting bool
}

// NewModel returns a model. When gated is true every space press calls
// toggle, which reports whether recording is now active.
func NewModel(gated bool, toggle func() bool) Model {
	return Model{status: StatusConnecting, gated: gated, toggle: toggle}
}

// Status returns the current status.
func (m Model) Status() Status { return m.status }

// Init implements [tea.Model].
func (m Model) Init() tea.Cmd { return nil }

// Update implements [tea.Model].
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case StatusMsg:
		m.status = Status(msg)
	case connectingMsg:
		m.status = StatusConnecting
		m.model = string(msg)
	case EntryMsg:
		return m, tea.Println(FormatEntry(history.Entry(msg)))
	case ErrorMsg:
		return m, tea.Println("Error: " + msg.Err.Error())
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case " ":
		if !m.gated || m.toggle == nil {
			break
		}
		if m.toggle() {
			m.status = StatusRecording
		} else {
			m.status = StatusDone
		}
	}
	return m, nil
}

// View implements [tea.Model].
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.status.String())
	if m.status == StatusConnecting && m.model != "" {
		fmt.Fprintf(&b, " %s", m.model)
	}
	b.WriteString("\n")
	if m.gated {
		b.WriteString("space: talk  q: quit\n")
	} else {
		b.WriteString("q: quit\n")
	}
	return b.String()
}

// Terminal is an interactive [Reporter] that owns the keyboard. In gated
// mode the space key toggles recording through a [ptt.Listener]. The
// listener runs on the UI goroutine, so the status line is updated by the
// model itself rather than through Recording and Done.
//
// Reporter methods never block on the UI: messages sent before Run starts
// are queued and delivered in order once it does.
type Terminal struct {
	prog     *tea.Program
	listener *ptt.Listener

	mu      sync.Mutex
	live    bool
	pending []tea.Msg
}

// NewTerminal returns a Terminal reading keys from in and drawing to out. A
// nil gate disables push-to-talk.
func NewTerminal(in io.Reader, out io.Writer, gate *ptt.Gate) *Terminal {
	t := &Terminal{}
	var toggle func() bool
	if gate != nil {
		t.listener = ptt.NewListener(gate, nil)
		toggle = func() bool {
			t.listener.Toggle()
			return gate.Open()
		}
	}
	t.prog = tea.NewProgram(NewModel(gate != nil, toggle),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	return t
}

// Run draws the UI until the user quits or ctx is cancelled.
func (t *Terminal) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, t.prog.Quit)
	defer stop()
	go t.flush()
	if _, err := t.prog.Run(); err != nil {
		return fmt.Errorf("ui: terminal: %w", err)
	}
	return nil
}

// flush delivers queued messages, then switches send to direct delivery.
// Program.Send returns once the program has exited, so flush ends with Run.
func (t *Terminal) flush() {
	for {
		t.mu.Lock()
		batch := t.pending
		t.pending = nil
		if len(batch) == 0 {
			t.live = true
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()
		for _, msg := range batch {
			t.prog.Send(msg)
		}
	}
}

func (t *Terminal) send(msg tea.Msg) {
	t.mu.Lock()
	if !t.live {
		t.pending = append(t.pending, msg)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.prog.Send(msg)
}

func (t *Terminal) Connecting(model string)   { t.send(connectingMsg(model)) }
func (t *Terminal) Connected()                { t.send(StatusMsg(StatusConnected)) }
func (t *Terminal) Recording()                { t.send(StatusMsg(StatusRecording)) }
func (t *Terminal) Done()                     { t.send(StatusMsg(StatusDone)) }
func (t *Terminal) Interrupted()              { t.send(StatusMsg(StatusInterrupted)) }
func (t *Terminal) Finalized(e history.Entry) { t.send(EntryMsg(e)) }
func (t *Terminal) Failed(err error)          { t.send(ErrorMsg{Err: err}) }

var _ Reporter = (*Terminal)(nil)
