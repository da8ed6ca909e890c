package dsp

import (
	"math"
	"math/rand/v2"
	"time"
)

// Smoother is a dual time-constant exponential filter: a short attack
// constant when the target rises above the current value, a longer release
// constant when it falls below. This reproduces the perceptual effect of an
// instant note onset followed by a natural fade.
//
// Time advances with the timestamps passed to Step, not the wall clock, so
// recorded streams smooth identically to live ones and tests are
// deterministic.
type Smoother struct {
	attack  time.Duration
	release time.Duration

	value float64
	last  time.Time
	init  bool
}

// NewSmoother creates a smoother. Attack should be shorter than release;
// equal constants degrade to a plain single-constant EMA.
func NewSmoother(attack, release time.Duration) *Smoother {
	return &Smoother{attack: attack, release: release}
}

// Step advances the filter to now and pulls the value toward target.
func (s *Smoother) Step(target float64, now time.Time) float64 {
	if !s.init {
		s.value = target
		s.last = now
		s.init = true
		return s.value
	}

	dt := now.Sub(s.last)
	s.last = now
	if dt <= 0 {
		return s.value
	}

	tau := s.release
	if target >= s.value {
		tau = s.attack
	}
	if tau <= 0 {
		s.value = target
		return s.value
	}

	alpha := 1 - math.Exp(-float64(dt)/float64(tau))
	s.value += alpha * (target - s.value)
	return s.value
}

// Value returns the current smoothed value without advancing the filter.
func (s *Smoother) Value() float64 { return s.value }

// ColorConfig parameterises a [ColorSmoother].
type ColorConfig struct {
	Attack  time.Duration
	Release time.Duration

	// Jitter is the bounded brightness perturbation amplitude as a fraction
	// of the brightness range. Zero disables jitter.
	Jitter float64

	// MinBrightness and MaxBrightness bound the brightness output in percent.
	MinBrightness float64
	MaxBrightness float64

	// Rand overrides the jitter source. Nil uses math/rand. Tests inject a
	// fixed source for determinism.
	Rand func() float64
}

// ColorSmoother applies per-channel smoothing to an RGB + brightness tuple.
// Color channels are clamped to [0, 255] and brightness to the configured
// bounds after smoothing and jitter.
type ColorSmoother struct {
	r, g, b *Smoother
	bright  *Smoother

	jitter float64
	minB   float64
	maxB   float64
	randFn func() float64
}

// NewColorSmoother builds one smoother per output channel.
func NewColorSmoother(cfg ColorConfig) *ColorSmoother {
	randFn := cfg.Rand
	if randFn == nil {
		randFn = rand.Float64
	}
	return &ColorSmoother{
		r:      NewSmoother(cfg.Attack, cfg.Release),
		g:      NewSmoother(cfg.Attack, cfg.Release),
		b:      NewSmoother(cfg.Attack, cfg.Release),
		bright: NewSmoother(cfg.Attack, cfg.Release),
		jitter: cfg.Jitter,
		minB:   cfg.MinBrightness,
		maxB:   cfg.MaxBrightness,
		randFn: randFn,
	}
}

// Apply smooths one frame's raw target. Jitter applies to brightness only and
// can never push it outside [MinBrightness, MaxBrightness].
func (c *ColorSmoother) Apply(r, g, b, brightness float64, now time.Time) (float64, float64, float64, float64) {
	sr := clamp(c.r.Step(r, now), 0, 255)
	sg := clamp(c.g.Step(g, now), 0, 255)
	sb := clamp(c.b.Step(b, now), 0, 255)

	sbr := c.bright.Step(brightness, now)
	if c.jitter > 0 {
		span := c.maxB - c.minB
		sbr += (c.randFn()*2 - 1) * c.jitter * span
	}
	sbr = clamp(sbr, c.minB, c.maxB)

	return sr, sg, sb, sbr
}
