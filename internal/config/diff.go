package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything else
// (backend URL, audio device, preference store) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged is set when any endpointing threshold or the minimum
	// silence hold changed.
	VADChanged bool
	NewVAD     VADConfig

	// ReconnectChanged is set when the reconnect policy changed. The
	// policy is consulted per attempt, so new values apply to the next
	// disconnect.
	ReconnectChanged bool
	NewReconnect     ReconnectConfig
}

// Empty reports whether nothing hot-reloadable changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VADChanged && !d.ReconnectChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Log.Level != new.Log.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Log.Level
	}

	if old.VAD != new.VAD {
		d.VADChanged = true
		d.NewVAD = new.VAD
	}

	if old.Reconnect != new.Reconnect {
		d.ReconnectChanged = true
		d.NewReconnect = new.Reconnect
	}

	return d
}
