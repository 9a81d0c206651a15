// Package turn accumulates the text of one conversational turn and turns it
// into history entries when the model signals that the turn is complete.
package turn

import (
	"context"
	"strings"

	"github.com/MrWong99/livevoice/internal/history"
)

// Buffer holds the user and agent text of the open turn. It is owned by the
// receiving goroutine and not safe for concurrent use.
type Buffer struct {
	user  strings.Builder
	agent strings.Builder
}

// AddUser appends a fragment of recognised user speech.
func (b *Buffer) AddUser(s string) { b.user.WriteString(s) }

// AddAgent appends a fragment of agent text or transcript.
func (b *Buffer) AddAgent(s string) { b.agent.WriteString(s) }

// User returns the raw user text.
func (b *Buffer) User() string { return b.user.String() }

// Agent returns the raw agent text.
func (b *Buffer) Agent() string { return b.agent.String() }

// ResetAgent discards the agent text only.
func (b *Buffer) ResetAgent() { b.agent.Reset() }

// Reset discards both buffers.
func (b *Buffer) Reset() {
	b.user.Reset()
	b.agent.Reset()
}

var droppedPrefixes = []string{"**", "I have acknowledged"}

// CleanAgentText removes model bookkeeping from agent text: lines whose
// trimmed form starts with "**" (thought headings) or "I have acknowledged"
// are dropped and the remaining lines are joined with single spaces.
func CleanAgentText(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		drop := false
		for _, p := range droppedPrefixes {
			if strings.HasPrefix(trimmed, p) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}

// Recorder turns completed turns into history entries and persists the log.
type Recorder struct {
	buf   Buffer
	log   *history.Log
	store history.Store
}

// NewRecorder returns a Recorder appending to log. store may be nil, in
// which case nothing is persisted.
func NewRecorder(log *history.Log, store history.Store) *Recorder {
	return &Recorder{log: log, store: store}
}

// AddUser appends recognised user speech to the open turn.
func (r *Recorder) AddUser(s string) { r.buf.AddUser(s) }

// AddAgent appends agent text to the open turn.
func (r *Recorder) AddAgent(s string) { r.buf.AddAgent(s) }

// Pending reports whether the open turn holds any text.
func (r *Recorder) Pending() bool {
	return r.buf.User() != "" || r.buf.Agent() != ""
}

// Finalize closes the open turn. The trimmed user text and the trimmed,
// cleaned agent text become entries when non-empty, in that order. Both
// buffers are reset and the whole log is saved before Finalize returns.
// The entries are returned even when saving fails.
func (r *Recorder) Finalize(ctx context.Context) ([]history.Entry, error) {
	var entries []history.Entry
	if text := strings.TrimSpace(r.buf.User()); text != "" {
		entries = append(entries, history.NewEntry(history.RoleUser, text))
	}
	if text := CleanAgentText(strings.TrimSpace(r.buf.Agent())); text != "" {
		entries = append(entries, history.NewEntry(history.RoleAgent, text))
	}
	r.buf.Reset()
	r.log.Append(entries...)
	return entries, r.Save(ctx)
}

// Interrupt discards the agent text of the open turn. User text is kept so
// it is recorded when the turn completes.
func (r *Recorder) Interrupt() { r.buf.ResetAgent() }

// Save writes the current log to the store.
func (r *Recorder) Save(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	return r.store.Save(ctx, r.log.Entries())
}
