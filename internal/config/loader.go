package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
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

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file means all defaults.
			err = nil
		} else {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}
	if cfg.Audio.GainDecay <= 0 || cfg.Audio.GainDecay > 1 {
		errs = append(errs, fmt.Errorf("audio.gain_decay %v is out of range (0, 1]", cfg.Audio.GainDecay))
	}

	// Analysis
	if cfg.Analysis.FluxWindow <= 0 {
		errs = append(errs, fmt.Errorf("analysis.flux_window %d must be positive", cfg.Analysis.FluxWindow))
	}
	if cfg.Analysis.FluxMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("analysis.flux_multiplier %v must be positive", cfg.Analysis.FluxMultiplier))
	}

	// Lights
	if cfg.Lights.MaxRate < 0 {
		errs = append(errs, fmt.Errorf("lights.max_rate %d must not be negative", cfg.Lights.MaxRate))
	}
	if len(cfg.Lights.Devices) == 0 && !cfg.Lights.Discover {
		slog.Warn("no lights configured and discovery is off; commands have nowhere to go")
	}

	// Visual — reuse the mapper's own validation so both agree.
	if mc, err := cfg.MapperConfig(max(len(cfg.Lights.Devices), 1)); err != nil {
		errs = append(errs, err)
	} else if err := mc.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
