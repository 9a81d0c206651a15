// Package history keeps the conversation log of a voice session and persists
// it between runs.
//
// A [Log] is an append-only, goroutine-safe sequence of [Entry] values. A
// [Store] loads and saves the whole log at once: [FileStore] writes a JSON
// array to disk, [PostgresStore] mirrors it into a relational table, and
// [Mirror] fans a save out to several stores.
package history

import (
	"encoding/json"
	"strings"
	"time"
)

// Role identifies the speaker of an entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "model"
)

// ParseRole normalises the role spellings found in older history files.
// "agent", "assistant" and "model" all map to [RoleAgent]. Unknown values are
// kept verbatim.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser
	case "model", "agent", "assistant":
		return RoleAgent
	default:
		return Role(s)
	}
}

// Label is the speaker prefix used in prompts.
func (r Role) Label() string {
	if r == RoleUser {
		return "User"
	}
	return "Assistant"
}

// Entry is one finalized utterance. Entries are never modified after they
// are appended to a [Log].
type Entry struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// NewEntry stamps text with the current local time.
func NewEntry(role Role, text string) Entry {
	return Entry{Role: role, Text: text, Timestamp: time.Now()}
}

type entryJSON struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// naive ISO-8601 layouts without a zone, as written by some producers.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// MarshalJSON writes the entry as {"role","text","timestamp"} with an
// RFC 3339 timestamp.
func (e Entry) MarshalJSON() ([]byte, error) {
	ts := ""
	if !e.Timestamp.IsZero() {
		ts = e.Timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(entryJSON{Role: string(e.Role), Text: e.Text, Timestamp: ts})
}

// UnmarshalJSON accepts RFC 3339 timestamps as well as zone-less ISO-8601
// ones, which are read as local time. An unparseable timestamp leaves the
// zero time rather than failing the whole entry.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Role = ParseRole(raw.Role)
	e.Text = raw.Text
	e.Timestamp = parseTimestamp(raw.Timestamp)
	return nil
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}
