package config

import "slices"

// ConfigDiff describes what changed between two configs, split by whether a
// change can be hot-applied to a running pipeline or needs a restart.
type ConfigDiff struct {
	// VisualChanged means the mode or its tuning changed; the pipeline can
	// absorb this at the next frame boundary.
	VisualChanged bool

	// LogLevelChanged can be applied immediately via a [slog.LevelVar].
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired covers everything rebuilt only at startup: the audio
	// format, beat detection window, light fleet, and telemetry address.
	RestartRequired bool
}

// Diff compares old and new configs and classifies what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Visual != new.Visual {
		d.VisualChanged = true
	}

	if old.Audio != new.Audio ||
		old.Analysis != new.Analysis ||
		old.Server.MetricsAddr != new.Server.MetricsAddr ||
		old.UI != new.UI ||
		old.Lights.Discover != new.Lights.Discover ||
		old.Lights.MaxRate != new.Lights.MaxRate ||
		!slices.Equal(old.Lights.Devices, new.Lights.Devices) {
		d.RestartRequired = true
	}

	return d
}
