package dsp

import (
	"testing"
	"time"
)

func TestSmootherFirstStepSnaps(t *testing.T) {
	s := NewSmoother(35*time.Millisecond, 160*time.Millisecond)
	now := time.Now()
	if got := s.Step(0.8, now); got != 0.8 {
		t.Errorf("first step = %v, want 0.8", got)
	}
	if s.Value() != 0.8 {
		t.Errorf("Value() = %v, want 0.8", s.Value())
	}
}

func TestSmootherAttackFasterThanRelease(t *testing.T) {
	const (
		attack  = 35 * time.Millisecond
		release = 160 * time.Millisecond
		dt      = 46 * time.Millisecond
	)
	now := time.Now()

	rising := NewSmoother(attack, release)
	rising.Step(0, now)
	up := rising.Step(1, now.Add(dt))

	falling := NewSmoother(attack, release)
	falling.Step(1, now)
	down := falling.Step(0, now.Add(dt))

	climbed := up
	dropped := 1 - down
	if climbed <= dropped {
		t.Errorf("attack should outpace release: climbed %v, dropped %v", climbed, dropped)
	}
	if up <= 0 || up >= 1 {
		t.Errorf("rising value = %v, want in (0, 1)", up)
	}
}

func TestSmootherConvergesOnTarget(t *testing.T) {
	s := NewSmoother(35*time.Millisecond, 160*time.Millisecond)
	now := time.Now()
	s.Step(0, now)

	var v float64
	for i := 1; i <= 50; i++ {
		now = now.Add(46 * time.Millisecond)
		v = s.Step(1, now)
	}
	if v < 0.999 {
		t.Errorf("after 50 frames value = %v, want ~1", v)
	}
}

func TestSmootherIgnoresNonPositiveDt(t *testing.T) {
	s := NewSmoother(35*time.Millisecond, 160*time.Millisecond)
	now := time.Now()
	s.Step(0.5, now)
	if got := s.Step(1, now); got != 0.5 {
		t.Errorf("zero dt step = %v, want 0.5", got)
	}
	if got := s.Step(1, now.Add(-time.Second)); got != 0.5 {
		t.Errorf("backwards step = %v, want 0.5", got)
	}
}

func TestSmootherZeroTauSnaps(t *testing.T) {
	s := NewSmoother(0, 0)
	now := time.Now()
	s.Step(0, now)
	if got := s.Step(1, now.Add(time.Millisecond)); got != 1 {
		t.Errorf("zero tau step = %v, want 1 (instant tracking)", got)
	}
}

func TestColorSmootherJitterStaysBounded(t *testing.T) {
	now := time.Now()

	for _, r := range []float64{0, 0.5, 1} {
		cs := NewColorSmoother(ColorConfig{
			Attack:        35 * time.Millisecond,
			Release:       160 * time.Millisecond,
			Jitter:        0.5,
			MinBrightness: 10,
			MaxBrightness: 90,
			Rand:          func() float64 { return r },
		})
		for i := 0; i < 20; i++ {
			_, _, _, br := cs.Apply(255, 0, 0, 100, now.Add(time.Duration(i)*46*time.Millisecond))
			if br < 10 || br > 90 {
				t.Fatalf("rand=%v frame %d: brightness %v outside [10, 90]", r, i, br)
			}
		}
	}
}

func TestColorSmootherClampsChannels(t *testing.T) {
	cs := NewColorSmoother(ColorConfig{
		Attack:        time.Millisecond,
		Release:       time.Millisecond,
		MinBrightness: 0,
		MaxBrightness: 100,
	})
	now := time.Now()
	cs.Apply(0, 0, 0, 0, now)
	r, g, b, br := cs.Apply(400, -50, 300, 250, now.Add(time.Second))
	if r != 255 || b != 255 {
		t.Errorf("hot channels = %v, %v, want 255", r, b)
	}
	if g != 0 {
		t.Errorf("negative channel = %v, want 0", g)
	}
	if br != 100 {
		t.Errorf("brightness = %v, want 100", br)
	}
}

func TestColorSmootherZeroJitterIsDeterministic(t *testing.T) {
	now := time.Now()
	build := func() *ColorSmoother {
		return NewColorSmoother(ColorConfig{
			Attack:        35 * time.Millisecond,
			Release:       160 * time.Millisecond,
			MinBrightness: 0,
			MaxBrightness: 100,
		})
	}
	a, b := build(), build()
	for i := 0; i < 10; i++ {
		ts := now.Add(time.Duration(i) * 46 * time.Millisecond)
		_, _, _, abr := a.Apply(200, 100, 50, 80, ts)
		_, _, _, bbr := b.Apply(200, 100, 50, 80, ts)
		if abr != bbr {
			t.Fatalf("frame %d: %v != %v", i, abr, bbr)
		}
	}
}
