package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/MrWong99/livevoice/internal/history"
)

// Plain writes one line per event to w. It is safe for concurrent use.
type Plain struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPlain returns a Plain reporter writing to w.
func NewPlain(w io.Writer) *Plain {
	return &Plain{w: w}
}

func (p *Plain) println(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, a...)
}

func (p *Plain) Connecting(model string) { p.println(StatusConnecting.String(), model) }
func (p *Plain) Connected()              { p.println(StatusConnected.String()) }
func (p *Plain) Recording()              { p.println(StatusRecording.String()) }
func (p *Plain) Done()                   { p.println(StatusDone.String()) }
func (p *Plain) Interrupted()            { p.println(StatusInterrupted.String()) }

func (p *Plain) Finalized(e history.Entry) { p.println(FormatEntry(e)) }

func (p *Plain) Failed(err error) { p.println("Error:", err) }

var _ Reporter = (*Plain)(nil)
