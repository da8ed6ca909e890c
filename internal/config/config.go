// Package config provides the configuration schema, loader, and file watcher
// for the visualizer.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/myselfshravan/wiz-hack/internal/mapper"
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

// SlogLevel converts l to the [slog] level, defaulting to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Audio    AudioConfig    `yaml:"audio"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Lights   LightsConfig   `yaml:"lights"`
	Visual   VisualConfig   `yaml:"visual"`
	UI       UIConfig       `yaml:"ui"`
}

// ServerConfig holds logging and telemetry settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address serving Prometheus metrics on /metrics
	// (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AudioConfig describes the incoming audio stream.
type AudioConfig struct {
	// SampleRate of the stream in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FrameSize is the number of samples analyzed per frame.
	FrameSize int `yaml:"frame_size"`

	// GainDecay is the per-frame decay of the auto-gain running maxima.
	// Close to 1 means slow adaptation.
	GainDecay float64 `yaml:"gain_decay"`
}

// AnalysisConfig tunes beat detection.
type AnalysisConfig struct {
	// FluxWindow is the rolling history length, in frames, behind the
	// adaptive beat threshold.
	FluxWindow int `yaml:"flux_window"`

	// FluxMultiplier scales the rolling median into the threshold.
	FluxMultiplier float64 `yaml:"flux_multiplier"`
}

// LightsConfig describes the light fleet.
type LightsConfig struct {
	// Devices lists light addresses. Ports default to the WiZ control port.
	Devices []string `yaml:"devices"`

	// Discover probes the local network for lights at startup and appends
	// anything found to Devices.
	Discover bool `yaml:"discover"`

	// MaxRate caps per-device commands per second. Zero disables the cap.
	MaxRate int `yaml:"max_rate"`
}

// VisualConfig selects and tunes the mapping mode. These are the settings the
// watcher hot-reloads without a restart.
type VisualConfig struct {
	// Mode is the visual mode name, e.g. "frequency_bands" or "strobe".
	Mode string `yaml:"mode"`

	// Sensitivity scales band energies before mapping.
	Sensitivity float64 `yaml:"sensitivity"`

	// BrightnessBoost multiplies brightness before clamping.
	BrightnessBoost float64 `yaml:"brightness_boost"`

	// MinBrightness and MaxBrightness bound output brightness in percent.
	MinBrightness float64 `yaml:"min_brightness"`
	MaxBrightness float64 `yaml:"max_brightness"`

	// AttackMs and ReleaseMs are the smoothing time constants in
	// milliseconds.
	AttackMs  int `yaml:"attack_ms"`
	ReleaseMs int `yaml:"release_ms"`
}

// UIConfig controls the terminal display.
type UIConfig struct {
	// Enabled renders live band meters instead of plain logs.
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file is given. Loading
// decodes on top of these values, so absent fields keep their defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			LogLevel: LogInfo,
		},
		Audio: AudioConfig{
			SampleRate: 22050,
			FrameSize:  1024,
			GainDecay:  0.995,
		},
		Analysis: AnalysisConfig{
			FluxWindow:     128,
			FluxMultiplier: 1.5,
		},
		Lights: LightsConfig{
			MaxRate: 50,
		},
		Visual: VisualConfig{
			Mode:            "frequency_bands",
			Sensitivity:     1.0,
			BrightnessBoost: 1.5,
			MinBrightness:   10,
			MaxBrightness:   100,
			AttackMs:        35,
			ReleaseMs:       160,
		},
	}
}

// MapperConfig converts the visual section into the mapper's configuration
// for the given device count.
func (c *Config) MapperConfig(devices int) (mapper.Config, error) {
	mode, err := mapper.ParseMode(c.Visual.Mode)
	if err != nil {
		return mapper.Config{}, fmt.Errorf("config: visual.mode: %w", err)
	}
	return mapper.Config{
		Mode:            mode,
		Sensitivity:     c.Visual.Sensitivity,
		BrightnessBoost: c.Visual.BrightnessBoost,
		MinBrightness:   c.Visual.MinBrightness,
		MaxBrightness:   c.Visual.MaxBrightness,
		Attack:          time.Duration(c.Visual.AttackMs) * time.Millisecond,
		Release:         time.Duration(c.Visual.ReleaseMs) * time.Millisecond,
		Devices:         devices,
	}.Defaults(), nil
}
