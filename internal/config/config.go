// Package config provides the configuration schema, loader, and connector
// registry for livevoice.
package config

import (
	"github.com/MrWong99/livevoice/internal/ptt"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Default values applied by [ApplyDefaults].
const (
	DefaultBackend        = "gemini-live"
	DefaultModel          = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultHistoryPath    = "conversation_history.json"
	DefaultContextEntries = 20
	DefaultInboundQueue   = 5
	DefaultFrameSamples   = 1024
	DefaultCaptureRate    = 16000
	DefaultPlaybackRate   = 24000
	DefaultSystemPrompt   = "You are a helpful and friendly voice assistant. Keep your answers short and conversational."
)

// Config is the root configuration structure. It is typically loaded with
// [Load] and completed with [ApplyEnv] and [ApplyDefaults].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Live    LiveConfig    `yaml:"live"`
	Audio   AudioConfig   `yaml:"audio"`
	History HistoryConfig `yaml:"history"`
	PTT     PTTConfig     `yaml:"ptt"`
}

// ServerConfig holds logging and the optional ops listener.
type ServerConfig struct {
	// ListenAddr serves /metrics, /healthz and /readyz when non-empty.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile receives log output while the terminal UI owns the screen.
	// Empty discards logs in that mode.
	LogFile string `yaml:"log_file"`
}

// LiveConfig selects and configures the remote speech session.
type LiveConfig struct {
	// Backend names a connector registered in the [Registry].
	Backend string `yaml:"backend"`

	// APIKey authenticates against the remote API. Usually set through
	// GEMINI_API_KEY rather than the file.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	Model string `yaml:"model"`

	// Voice selects a prebuilt voice. Empty uses the model default.
	Voice string `yaml:"voice"`

	// SystemInstruction is the base prompt. History is appended to it.
	SystemInstruction string `yaml:"system_instruction"`

	// ContextEntries is how many past entries are replayed into the prompt.
	ContextEntries int `yaml:"context_entries"`
}

// AudioConfig holds device parameters.
type AudioConfig struct {
	CaptureRate  int `yaml:"capture_rate"`
	PlaybackRate int `yaml:"playback_rate"`
	FrameSamples int `yaml:"frame_samples"`

	// InboundQueue is the number of captured frames that may wait for upload.
	InboundQueue int `yaml:"inbound_queue"`
}

// HistoryConfig locates the conversation history.
type HistoryConfig struct {
	// Path is the JSON history file.
	Path string `yaml:"path"`

	// PostgresDSN, when set, mirrors every save into PostgreSQL.
	PostgresDSN string `yaml:"postgres_dsn"`

	// ConversationID keys the PostgreSQL mirror. Empty generates one.
	ConversationID string `yaml:"conversation_id"`
}

// PTTConfig configures push-to-talk.
type PTTConfig struct {
	// Mode is auto, gated or ungated.
	Mode ptt.Mode `yaml:"mode"`
}
