package history

import "strings"

// DefaultContextEntries is how many trailing entries BuildInstruction
// considers when n <= 0.
const DefaultContextEntries = 20

const (
	historyHeader = "--- Previous Conversation History ---"
	historyFooter = "--- End of History ---"
)

// BuildInstruction appends the last n entries to base so a new session can
// pick up where the previous one left off. Entries with empty text are
// skipped but still count towards n. With no entries base is returned as is.
func BuildInstruction(base string, entries []Entry, n int) string {
	if len(entries) == 0 {
		return base
	}
	if n <= 0 {
		n = DefaultContextEntries
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")
	b.WriteString(historyHeader)
	for _, e := range entries {
		if e.Text == "" {
			continue
		}
		b.WriteByte('\n')
		b.WriteString(e.Role.Label())
		b.WriteString(": ")
		b.WriteString(e.Text)
	}
	b.WriteByte('\n')
	b.WriteString(historyFooter)
	b.WriteByte('\n')
	return b.String()
}
