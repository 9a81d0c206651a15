package history

import "sync"

// Log is the in-memory conversation history. It is safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewLog returns a Log seeded with a copy of initial.
func NewLog(initial []Entry) *Log {
	l := &Log{}
	l.entries = append(l.entries, initial...)
	return l
}

// Append adds entries at the end of the log.
func (l *Log) Append(entries ...Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entries...)
}

// Entries returns a snapshot of the log.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
