package mapper

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/myselfshravan/wiz-hack/internal/dsp"
)

// strobeGate is the beat-strength level that triggers a strobe flash at
// sensitivity 1.0. Beat strength is already relative to the adaptive flux
// threshold, so the gate only rejects marginal onsets.
const strobeGate = 0.05

// band returns the i-th normalized band energy, zero when absent.
func band(snap dsp.Snapshot, i int) float64 {
	if i < 0 || i >= len(snap.Bands) {
		return 0
	}
	return snap.Bands[i]
}

// scaled applies sensitivity and clamps back into [0, 1].
func scaled(v, sensitivity float64) float64 {
	return clamp01(v * sensitivity)
}

// brightnessFor maps a 0..1 level into the configured brightness range with
// the boost applied before clamping.
func brightnessFor(cfg Config, level float64) float64 {
	span := cfg.MaxBrightness - cfg.MinBrightness
	b := cfg.MinBrightness + clamp01(level*cfg.BrightnessBoost)*span
	return clampRange(b, cfg.MinBrightness, cfg.MaxBrightness)
}

// ── frequency_bands ──────────────────────────────────────────────────────────

// frequencyBands maps bass→R, mid→G, treble→B with a power curve for more
// dramatic swings, and drives brightness from overall energy.
type frequencyBands struct {
	cfg Config
}

func (m *frequencyBands) Map(snap dsp.Snapshot, beat float64) []Target {
	curve := func(v float64) float64 { return math.Pow(scaled(v, m.cfg.Sensitivity), 1.5) * 255 }
	return []Target{{
		R:          curve(band(snap, 0)),
		G:          curve(band(snap, 1)),
		B:          curve(band(snap, 2)),
		Brightness: brightnessFor(m.cfg, snap.Energy),
	}}
}

// ── energy ───────────────────────────────────────────────────────────────────

var (
	coolColor = colorful.Color{R: 0.2, G: 0.2, B: 1.0}  // deep blue
	warmColor = colorful.Color{R: 1.0, G: 0.65, B: 0.2} // amber
)

// energy interpolates between a cool and a warm endpoint on overall level.
type energy struct {
	cfg Config
}

func (m *energy) Map(snap dsp.Snapshot, beat float64) []Target {
	t := clamp01(snap.Energy * m.cfg.Sensitivity)
	c := coolColor.BlendLuv(warmColor, t)
	return []Target{{
		R:          c.R * 255,
		G:          c.G * 255,
		B:          c.B * 255,
		Brightness: brightnessFor(m.cfg, snap.Energy),
	}}
}

// ── rainbow ──────────────────────────────────────────────────────────────────

// rainbowHues assigns a hue per band index: purple for bass, green-yellow for
// mids, cyan-blue for treble. Extra bands continue around the wheel.
var rainbowHues = []float64{315, 90, 200}

// rainbow picks a hue from the dominant band and scales value with its
// intensity.
type rainbow struct {
	cfg Config
}

func (m *rainbow) Map(snap dsp.Snapshot, beat float64) []Target {
	hue := rainbowHues[snap.Dominant%len(rainbowHues)]
	intensity := scaled(band(snap, snap.Dominant), m.cfg.Sensitivity)
	c := colorful.Hsv(hue, 1, intensity)
	return []Target{{
		R:          c.R * 255,
		G:          c.G * 255,
		B:          c.B * 255,
		Brightness: brightnessFor(m.cfg, band(snap, snap.Dominant)),
	}}
}

// ── multi ────────────────────────────────────────────────────────────────────

// bandColors are the per-band base colors for the multi mode: bass red-purple,
// mids green-yellow, treble cyan-blue.
var bandColors = [][3]float64{
	{255, 50, 200},
	{200, 255, 50},
	{50, 200, 255},
}

// multi emits one target per device: device i shows band i mod N, so three
// lights become a walking bass/mid/treble display.
type multi struct {
	cfg Config
}

func (m *multi) Map(snap dsp.Snapshot, beat float64) []Target {
	targets := make([]Target, m.cfg.Devices)
	for i := range targets {
		bi := i % len(snap.Bands)
		v := scaled(band(snap, bi), m.cfg.Sensitivity)
		base := bandColors[bi%len(bandColors)]
		targets[i] = Target{
			R:          base[0] * v,
			G:          base[1] * v,
			B:          base[2] * v,
			Brightness: brightnessFor(m.cfg, band(snap, bi)),
		}
	}
	return targets
}

// ── pulse ────────────────────────────────────────────────────────────────────

// pulseColor is a static warm white; the pulse mode moves brightness only.
var pulseColor = [3]float64{255, 200, 150}

// pulse holds a fixed color and pumps brightness with overall energy.
// Sensitivity shapes the power curve: higher values make swings more
// dramatic.
type pulse struct {
	cfg Config
}

func (m *pulse) Map(snap dsp.Snapshot, beat float64) []Target {
	power := 1.5 / m.cfg.Sensitivity
	span := m.cfg.MaxBrightness - m.cfg.MinBrightness
	b := m.cfg.MinBrightness + math.Pow(clamp01(snap.Energy), power)*span
	return []Target{{
		R:          pulseColor[0],
		G:          pulseColor[1],
		B:          pulseColor[2],
		Brightness: clampRange(b, m.cfg.MinBrightness, m.cfg.MaxBrightness),
	}}
}

// ── strobe ───────────────────────────────────────────────────────────────────

// strobe flashes white to maximum brightness when beat strength clears the
// gate and sits near the floor otherwise. Near-binary by design; the profile
// trims release smoothing so the flash actually drops.
type strobe struct {
	cfg  Config
	gate float64
}

func (m *strobe) Map(snap dsp.Snapshot, beat float64) []Target {
	var b float64
	if beat > m.gate {
		b = m.cfg.MaxBrightness
	} else {
		b = clampRange(snap.Energy*40, m.cfg.MinBrightness, m.cfg.MaxBrightness*0.3)
	}
	return []Target{{
		R:          255,
		G:          255,
		B:          255,
		Brightness: b,
	}}
}

// ── spectrum_pulse ───────────────────────────────────────────────────────────

// spectrumHints are muted base colors hinting at the dominant band without
// dominating the show: red-purple bass, amber mids, cyan treble.
var spectrumHints = [][3]float64{
	{200, 50, 150},
	{255, 180, 50},
	{50, 150, 255},
}

// spectrumPulse colors from the dominant band at reduced saturation while
// brightness carries the show: an energy-driven level plus a beat-driven
// overdrive "pop" that may briefly exceed the nominal maximum before the
// release constant pulls it back. Shared by v1 and v2; the two differ only in
// the smoothing profile Resolve attaches.
type spectrumPulse struct {
	cfg Config
}

func (m *spectrumPulse) Map(snap dsp.Snapshot, beat float64) []Target {
	hint := spectrumHints[snap.Dominant%len(spectrumHints)]

	power := (1.0 / m.cfg.BrightnessBoost) / m.cfg.Sensitivity
	span := m.cfg.MaxBrightness - m.cfg.MinBrightness
	b := m.cfg.MinBrightness + math.Pow(clamp01(snap.Energy), power)*span

	// Post-beat pop: up to 30% of the range on top, clamped later to the
	// profile's overdrive ceiling.
	b += math.Min(beat*m.cfg.Sensitivity, 1) * 0.3 * span

	return []Target{{
		R:          hint[0] * 0.8,
		G:          hint[1] * 0.8,
		B:          hint[2] * 0.8,
		Brightness: clampRange(b, m.cfg.MinBrightness, overdriveCeiling(m.cfg)),
	}}
}

// ── helpers ──────────────────────────────────────────────────────────────────

func clamp01(v float64) float64 { return clampRange(v, 0, 1) }

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
