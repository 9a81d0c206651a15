package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/livevoice/internal/ptt"
)

// Environment variables read by [ApplyEnv].
const (
	EnvAPIKey            = "GEMINI_API_KEY"
	EnvSystemInstruction = "SYSTEM_INSTRUCTION"
	EnvDatabaseURL       = "LIVEVOICE_DATABASE_URL"
)

// ErrMissingAPIKey is returned by [Validate] when no API key is configured.
var ErrMissingAPIKey = errors.New("config: " + EnvAPIKey + " is not set")

// Load reads the YAML configuration file at path. A missing file yields an
// empty Config so that defaults and the environment alone are enough.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("config file not found, using defaults", "path", path)
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r. Unknown keys are rejected.
// An empty document yields an empty Config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. With no
// arguments ".env" is used. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("config: load env file: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. getenv is usually
// [os.Getenv]. Set variables win over file values.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvAPIKey); v != "" {
		cfg.Live.APIKey = v
	}
	if v := getenv(EnvSystemInstruction); v != "" {
		cfg.Live.SystemInstruction = v
	}
	if v := getenv(EnvDatabaseURL); v != "" {
		cfg.History.PostgresDSN = v
	}
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Live.Backend == "" {
		cfg.Live.Backend = DefaultBackend
	}
	if cfg.Live.Model == "" {
		cfg.Live.Model = DefaultModel
	}
	if cfg.Live.SystemInstruction == "" {
		cfg.Live.SystemInstruction = DefaultSystemPrompt
	}
	if cfg.Live.ContextEntries == 0 {
		cfg.Live.ContextEntries = DefaultContextEntries
	}
	if cfg.Audio.CaptureRate == 0 {
		cfg.Audio.CaptureRate = DefaultCaptureRate
	}
	if cfg.Audio.PlaybackRate == 0 {
		cfg.Audio.PlaybackRate = DefaultPlaybackRate
	}
	if cfg.Audio.FrameSamples == 0 {
		cfg.Audio.FrameSamples = DefaultFrameSamples
	}
	if cfg.Audio.InboundQueue == 0 {
		cfg.Audio.InboundQueue = DefaultInboundQueue
	}
	if cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath
	}
	if cfg.PTT.Mode == "" {
		cfg.PTT.Mode = ptt.ModeAuto
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found; a
// missing API key is reported as [ErrMissingAPIKey].
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Live.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if cfg.Live.ContextEntries < 0 {
		errs = append(errs, fmt.Errorf("live.context_entries %d must not be negative", cfg.Live.ContextEntries))
	}

	for _, f := range []struct {
		name string
		v    int
	}{
		{"audio.capture_rate", cfg.Audio.CaptureRate},
		{"audio.playback_rate", cfg.Audio.PlaybackRate},
		{"audio.frame_samples", cfg.Audio.FrameSamples},
		{"audio.inbound_queue", cfg.Audio.InboundQueue},
	} {
		if f.v < 0 {
			errs = append(errs, fmt.Errorf("%s %d must not be negative", f.name, f.v))
		}
	}

	if cfg.PTT.Mode != "" {
		if _, err := ptt.ParseMode(string(cfg.PTT.Mode)); err != nil {
			errs = append(errs, fmt.Errorf("ptt.mode: %w", err))
		}
	}

	if cfg.History.ConversationID != "" && cfg.History.PostgresDSN == "" {
		slog.Warn("history.conversation_id is set but no postgres DSN is configured; it will be ignored")
	}

	return errors.Join(errs...)
}
