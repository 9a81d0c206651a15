package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls its file.
const DefaultWatchInterval = 5 * time.Second

// Watcher polls a config file and hands every effective change to a
// callback as a [ConfigDiff] plus the new config. Edits that leave the
// parsed settings unchanged (comments, formatting, touch) are not reported.
//
// Only the file is watched; environment overrides are not reapplied.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(ConfigDiff, *Config)

	mu      sync.Mutex
	current *Config
	sum     [sha256.Size]byte

	cancel context.CancelFunc
	done   chan struct{}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and polls it until ctx is done or Stop is called.
// onChange may be nil. The initial load must succeed.
func NewWatcher(ctx context.Context, path string, onChange func(ConfigDiff, *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, sum, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.sum = cfg, sum

	ctx, w.cancel = context.WithCancel(ctx)
	go w.poll(ctx)
	return w, nil
}

// Current returns the last config that loaded successfully.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and waits for the poll goroutine to exit. It is safe to
// call more than once.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

// Reload reads the file now. An unreadable or invalid file is returned as an
// error and the current config is kept. When the settings changed the
// callback runs before Reload returns.
func (w *Watcher) Reload() (ConfigDiff, error) {
	cfg, sum, err := w.read()
	if err != nil {
		return ConfigDiff{}, err
	}

	w.mu.Lock()
	if sum == w.sum {
		w.mu.Unlock()
		return ConfigDiff{}, nil
	}
	d := Diff(w.current, cfg)
	w.current, w.sum = cfg, sum
	w.mu.Unlock()

	if d.Changed() {
		slog.Info("config: reloaded", "path", w.path, "log_level_changed", d.LogLevelChanged, "restart_required", d.RestartRequired)
		if w.onChange != nil {
			w.onChange(d, cfg)
		}
	}
	return d, nil
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.done)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := w.Reload(); err != nil {
				slog.Warn("config: reload failed, keeping previous settings", "path", w.path, "err", err)
			}
		}
	}
}

// read parses the file with defaults applied. Only the log level is
// validated since nothing else is applied while running.
func (w *Watcher) read() (*Config, [sha256.Size]byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		return nil, [sha256.Size]byte{}, fmt.Errorf("config: server.log_level %q is invalid", cfg.Server.LogLevel)
	}
	ApplyDefaults(cfg)
	return cfg, sha256.Sum256(data), nil
}
