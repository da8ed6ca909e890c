package dsp

import "testing"

func TestFluxFirstFrameIsZero(t *testing.T) {
	d := NewFluxDetector(8, 1.5)
	if beat := d.Step([]float64{5, 5, 5}); beat != 0 {
		t.Errorf("first frame beat = %v, want 0", beat)
	}
}

func TestFluxDetectsOnset(t *testing.T) {
	d := NewFluxDetector(32, 1.5)

	quiet := make([]float64, 16)
	for i := 0; i < 10; i++ {
		if beat := d.Step(quiet); beat != 0 {
			t.Fatalf("silence at frame %d: beat = %v, want 0", i, beat)
		}
	}

	loud := make([]float64, 16)
	for i := range loud {
		loud[i] = 10
	}
	if beat := d.Step(loud); beat <= 0 {
		t.Errorf("onset beat = %v, want > 0", beat)
	}

	// A sustained level is not an onset.
	if beat := d.Step(loud); beat != 0 {
		t.Errorf("sustained beat = %v, want 0", beat)
	}
}

func TestFluxIgnoresDecreases(t *testing.T) {
	d := NewFluxDetector(32, 1.5)

	loud := []float64{10, 10, 10, 10}
	quiet := []float64{1, 1, 1, 1}
	d.Step(loud)
	if beat := d.Step(quiet); beat != 0 {
		t.Errorf("offset beat = %v, want 0 (flux is half-wave rectified)", beat)
	}
}

func TestFluxThresholdAdapts(t *testing.T) {
	d := NewFluxDetector(16, 1.5)

	// Ramp the spectrum up by a constant step every frame. The first rise
	// sticks out against the mostly-silent history, but once the rolling
	// median reflects the steady climb the threshold overtakes it.
	frame := func(level float64) []float64 {
		return []float64{level, level, level, level}
	}

	d.Step(frame(0))
	early := d.Step(frame(1))
	if early <= 0 {
		t.Fatalf("first rise should register: beat = %v", early)
	}

	var late float64
	for i := 2; i < 20; i++ {
		late = d.Step(frame(float64(i)))
	}
	if late != 0 {
		t.Errorf("steady climb should stop registering: beat = %v", late)
	}
	if d.Threshold() <= 0 {
		t.Errorf("threshold = %v, want > 0", d.Threshold())
	}
}

func TestFluxHandlesShapeChange(t *testing.T) {
	d := NewFluxDetector(8, 1.5)
	d.Step([]float64{1, 2, 3})
	// A different magnitude length restarts the reference frame instead of
	// indexing out of range.
	if beat := d.Step([]float64{1, 2, 3, 4, 5}); beat != 0 {
		t.Errorf("shape change beat = %v, want 0", beat)
	}
}

func TestFluxEmptyMagnitudes(t *testing.T) {
	d := NewFluxDetector(8, 1.5)
	for i := 0; i < 3; i++ {
		if beat := d.Step(nil); beat != 0 {
			t.Errorf("empty magnitudes beat = %v, want 0", beat)
		}
	}
}
