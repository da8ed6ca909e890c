package dsp

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultFluxWindow holds roughly six seconds of history at 1024 samples per
// frame and 22050 Hz.
const DefaultFluxWindow = 128

// DefaultFluxMultiplier scales the rolling median into the adaptive
// threshold.
const DefaultFluxMultiplier = 1.5

// FluxDetector turns frame-to-frame spectral change into a beat-strength
// scalar. The threshold adapts to a rolling median of recent flux, so
// detection self-adjusts to ambient loudness.
type FluxDetector struct {
	prev       []float64
	window     []float64 // ring buffer of recent flux values
	idx        int
	filled     int
	multiplier float64
	threshold  float64
	scratch    []float64
}

// NewFluxDetector creates a detector with the given rolling-window length and
// threshold multiplier. Non-positive arguments fall back to the defaults.
func NewFluxDetector(windowLen int, multiplier float64) *FluxDetector {
	if windowLen <= 0 {
		windowLen = DefaultFluxWindow
	}
	if multiplier <= 0 {
		multiplier = DefaultFluxMultiplier
	}
	return &FluxDetector{
		window:     make([]float64, windowLen),
		multiplier: multiplier,
		scratch:    make([]float64, 0, windowLen),
	}
}

// Step consumes the current frame's magnitude vector and returns beat
// strength: the half-wave-rectified flux above the adaptive threshold,
// zero when nothing sticks out. The first frame yields zero by convention.
func (d *FluxDetector) Step(mags []float64) float64 {
	if d.prev == nil || len(d.prev) != len(mags) {
		d.prev = append(d.prev[:0], mags...)
		d.push(0)
		return 0
	}

	var flux float64
	for i, m := range mags {
		if diff := m - d.prev[i]; diff > 0 {
			flux += diff
		}
	}
	if len(mags) > 0 {
		flux /= float64(len(mags))
	}
	d.prev = append(d.prev[:0], mags...)

	d.push(flux)
	d.threshold = d.multiplier * d.median()

	if beat := flux - d.threshold; beat > 0 {
		return beat
	}
	return 0
}

// Threshold reports the current adaptive threshold, mainly for the UI.
func (d *FluxDetector) Threshold() float64 { return d.threshold }

func (d *FluxDetector) push(v float64) {
	d.window[d.idx] = v
	d.idx = (d.idx + 1) % len(d.window)
	if d.filled < len(d.window) {
		d.filled++
	}
}

func (d *FluxDetector) median() float64 {
	if d.filled == 0 {
		return 0
	}
	d.scratch = append(d.scratch[:0], d.window[:d.filled]...)
	sort.Float64s(d.scratch)
	return stat.Quantile(0.5, stat.Empirical, d.scratch, nil)
}
