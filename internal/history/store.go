package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Store loads and saves a complete conversation log.
type Store interface {
	// Load returns the persisted entries. A store with nothing persisted
	// returns an empty slice and no error.
	Load(ctx context.Context) ([]Entry, error)

	// Save replaces the persisted log with entries.
	Save(ctx context.Context, entries []Entry) error
}

// FileStore persists the log as an indented JSON array in a single file.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore for path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store writes to.
func (s *FileStore) Path() string { return s.path }

// Load reads the history file. A missing file yields an empty log. A file
// that cannot be parsed is reported with a warning and also yields an empty
// log, so a damaged history never prevents a session from starting.
func (s *FileStore) Load(_ context.Context) ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		slog.Warn("history: could not read history file", "path", s.path, "err", err)
		return []Entry{}, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Entry{}, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Warn("history: ignoring unreadable history file", "path", s.path, "err", err)
		return []Entry{}, nil
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Save writes entries to a temporary file next to the target and renames it
// into place, so readers never observe a partially written history.
func (s *FileStore) Save(_ context.Context, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("history: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("history: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("history: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("history: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("history: close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("history: chmod: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("history: rename: %w", err)
	}
	return nil
}

// Mirror loads from Primary and saves to Primary and every store in Mirrors.
// A failing mirror does not prevent the others from being written; all
// errors are joined.
type Mirror struct {
	Primary Store
	Mirrors []Store
}

// Load implements [Store] by delegating to Primary.
func (m *Mirror) Load(ctx context.Context) ([]Entry, error) {
	return m.Primary.Load(ctx)
}

// Save implements [Store].
func (m *Mirror) Save(ctx context.Context, entries []Entry) error {
	errs := []error{m.Primary.Save(ctx, entries)}
	for _, s := range m.Mirrors {
		errs = append(errs, s.Save(ctx, entries))
	}
	return errors.Join(errs...)
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*Mirror)(nil)
)
