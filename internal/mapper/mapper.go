// Package mapper converts spectral snapshots and beat strength into color
// targets for the lights. Each visual mode is a concrete Mapper resolved once
// at configuration time, so the per-frame path is a fixed-cost method call
// rather than a string-keyed lookup.
package mapper

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/myselfshravan/wiz-hack/internal/dsp"
)

// Mode identifies a visual mapping mode.
type Mode int

const (
	ModeFrequencyBands Mode = iota
	ModeEnergy
	ModeRainbow
	ModeMulti
	ModePulse
	ModeStrobe
	ModeSpectrumPulse
	ModeSpectrumPulseV2
)

var modeNames = map[Mode]string{
	ModeFrequencyBands:  "frequency_bands",
	ModeEnergy:          "energy",
	ModeRainbow:         "rainbow",
	ModeMulti:           "multi",
	ModePulse:           "pulse",
	ModeStrobe:          "strobe",
	ModeSpectrumPulse:   "spectrum_pulse",
	ModeSpectrumPulseV2: "spectrum_pulse_v2",
}

// String returns the mode's configuration name.
func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("mapper: unknown mode %q", s)
}

// Target is the raw color command for one light before smoothing. Channels
// are float64 so the smoothing engine can integrate fractionally; the wire
// layer rounds.
type Target struct {
	R, G, B    float64 // 0..255
	Brightness float64 // percent, 0..100
}

// Config is the immutable per-session mapping configuration. It is set at
// pipeline start, replaced wholesale on reconfigure, and never mutated
// mid-frame.
type Config struct {
	Mode Mode

	// Sensitivity scales how aggressively raw features map into the output
	// range. Default 1.0, typical range 0.1–3.0.
	Sensitivity float64

	// BrightnessBoost multiplies final brightness before clamping.
	BrightnessBoost float64

	// MinBrightness and MaxBrightness bound the output in percent.
	MinBrightness float64
	MaxBrightness float64

	// Attack and Release are the smoothing base time constants.
	Attack  time.Duration
	Release time.Duration

	// Devices is the number of configured lights. Only the multi mode emits
	// one target per device; every other mode broadcasts a single target.
	Devices int
}

// Defaults fills zero-valued fields with the standard tuning.
func (c Config) Defaults() Config {
	if c.Sensitivity == 0 {
		c.Sensitivity = 1.0
	}
	if c.BrightnessBoost == 0 {
		c.BrightnessBoost = 1.5
	}
	if c.MaxBrightness == 0 {
		c.MaxBrightness = 100
	}
	if c.Attack == 0 {
		c.Attack = 35 * time.Millisecond
	}
	if c.Release == 0 {
		c.Release = 160 * time.Millisecond
	}
	if c.Devices == 0 {
		c.Devices = 1
	}
	return c
}

// Validate reports all configuration errors at once without touching any
// pipeline state.
func (c Config) Validate() error {
	var errs []error
	if _, ok := modeNames[c.Mode]; !ok {
		errs = append(errs, fmt.Errorf("mapper: unknown mode %d", int(c.Mode)))
	}
	if c.Sensitivity <= 0 {
		errs = append(errs, fmt.Errorf("mapper: sensitivity must be positive, got %v", c.Sensitivity))
	}
	if c.MinBrightness < 0 || c.MaxBrightness > 100 || c.MinBrightness >= c.MaxBrightness {
		errs = append(errs, fmt.Errorf("mapper: brightness bounds [%v, %v] invalid", c.MinBrightness, c.MaxBrightness))
	}
	if c.Devices < 1 {
		errs = append(errs, fmt.Errorf("mapper: devices must be at least 1, got %d", c.Devices))
	}
	return errors.Join(errs...)
}

// Mapper converts one frame's features into per-light targets. A single
// returned target is broadcast to all lights; multiple targets are assigned
// per device index.
type Mapper interface {
	Map(snap dsp.Snapshot, beat float64) []Target
}

// Profile carries the smoothing parameters a mode requires. The pipeline
// builds one ColorSmoother per target group from it.
type Profile struct {
	Attack  time.Duration
	Release time.Duration

	// Jitter is the bounded brightness perturbation fraction; only
	// spectrum_pulse_v2 sets it.
	Jitter float64

	// MinBrightness and MaxBrightness bound the smoothed output. The
	// spectrum-pulse modes raise MaxBrightness above the configured ceiling
	// to allow the brief post-beat overdrive.
	MinBrightness float64
	MaxBrightness float64
}

// Resolve constructs the mode's Mapper and smoothing Profile. Called once at
// start or reconfigure, never per frame. Errors are configuration errors; the
// pipeline stays in its prior state when Resolve fails.
func Resolve(cfg Config) (Mapper, Profile, error) {
	cfg = cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, Profile{}, err
	}

	prof := Profile{
		Attack:        cfg.Attack,
		Release:       cfg.Release,
		MinBrightness: cfg.MinBrightness,
		MaxBrightness: cfg.MaxBrightness,
	}

	var m Mapper
	switch cfg.Mode {
	case ModeFrequencyBands:
		m = &frequencyBands{cfg: cfg}
	case ModeEnergy:
		m = &energy{cfg: cfg}
	case ModeRainbow:
		m = &rainbow{cfg: cfg}
	case ModeMulti:
		m = &multi{cfg: cfg}
	case ModePulse:
		m = &pulse{cfg: cfg}
	case ModeStrobe:
		m = &strobe{cfg: cfg, gate: strobeGate / cfg.Sensitivity}
		// A strobe wants a hard flash and a quick drop; heavy release
		// smoothing would smear the flash into a glow.
		prof.Release = minDuration(cfg.Release, 40*time.Millisecond)
	case ModeSpectrumPulse:
		m = &spectrumPulse{cfg: cfg}
		// v1 keeps single-constant smoothing.
		prof.Attack = cfg.Release
		prof.MaxBrightness = overdriveCeiling(cfg)
	case ModeSpectrumPulseV2:
		m = &spectrumPulse{cfg: cfg}
		prof.Jitter = 0.05
		prof.MaxBrightness = overdriveCeiling(cfg)
	default:
		return nil, Profile{}, fmt.Errorf("mapper: unknown mode %d", int(cfg.Mode))
	}
	return m, prof, nil
}

// overdriveCeiling allows the post-beat "pop" to exceed the nominal maximum
// by a quarter of the brightness range, capped at the protocol limit.
func overdriveCeiling(cfg Config) float64 {
	return math.Min(100, cfg.MaxBrightness+0.25*(cfg.MaxBrightness-cfg.MinBrightness))
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
