package config

// ConfigDiff describes what changed between two configs. Only the log level
// can be applied to a running session; every other change is listed in
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the changed settings that only take effect on
	// the next start, in YAML key form (e.g. "live.model").
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed. Only keys are
// reported, never values.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	fields := []struct {
		key      string
		old, new any
	}{
		{"server.listen_addr", old.Server.ListenAddr, new.Server.ListenAddr},
		{"server.log_file", old.Server.LogFile, new.Server.LogFile},
		{"live.backend", old.Live.Backend, new.Live.Backend},
		{"live.api_key", old.Live.APIKey, new.Live.APIKey},
		{"live.base_url", old.Live.BaseURL, new.Live.BaseURL},
		{"live.model", old.Live.Model, new.Live.Model},
		{"live.voice", old.Live.Voice, new.Live.Voice},
		{"live.system_instruction", old.Live.SystemInstruction, new.Live.SystemInstruction},
		{"live.context_entries", old.Live.ContextEntries, new.Live.ContextEntries},
		{"audio.capture_rate", old.Audio.CaptureRate, new.Audio.CaptureRate},
		{"audio.playback_rate", old.Audio.PlaybackRate, new.Audio.PlaybackRate},
		{"audio.frame_samples", old.Audio.FrameSamples, new.Audio.FrameSamples},
		{"audio.inbound_queue", old.Audio.InboundQueue, new.Audio.InboundQueue},
		{"history.path", old.History.Path, new.History.Path},
		{"history.postgres_dsn", old.History.PostgresDSN, new.History.PostgresDSN},
		{"history.conversation_id", old.History.ConversationID, new.History.ConversationID},
		{"ptt.mode", old.PTT.Mode, new.PTT.Mode},
	}
	for _, f := range fields {
		if f.old != f.new {
			d.RestartRequired = append(d.RestartRequired, f.key)
		}
	}
	return d
}
