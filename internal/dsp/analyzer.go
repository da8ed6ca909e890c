// Package dsp contains the signal-analysis stages of the visualizer: spectral
// band analysis, spectral-flux transient detection, and attack/release
// smoothing. All state is owned by the pipeline loop; nothing here is safe
// for concurrent use and nothing needs to be.
package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/myselfshravan/wiz-hack/internal/source"
)

// ErrInputShape reports a frame whose sample count does not match the
// analyzer's configured frame size. The pipeline skips such frames and keeps
// running.
var ErrInputShape = errors.New("dsp: input shape mismatch")

// Band is a contiguous frequency range in Hz over which magnitude is
// aggregated.
type Band struct {
	Name string
	Low  float64
	High float64
}

// DefaultBands is the bass/mid/treble split used by all built-in modes.
func DefaultBands() []Band {
	return []Band{
		{Name: "bass", Low: 20, High: 250},
		{Name: "mid", Low: 250, High: 4000},
		{Name: "treble", Low: 4000, High: 20000},
	}
}

// Snapshot is the per-frame analysis result consumed by the transient
// detector and the mode mappers.
type Snapshot struct {
	// Bands holds per-band energy after auto-gain normalization, in [0, 1].
	Bands []float64

	// RawBands holds the un-normalized mean magnitude per band.
	RawBands []float64

	// Energy is the overall signal level derived from RMS, in [0, 1].
	Energy float64

	// Dominant is the index of the strongest band.
	Dominant int

	// Magnitudes is the per-bin magnitude vector. It is only valid until the
	// next Analyze call; the transient detector copies what it needs.
	Magnitudes []float64
}

// Analyzer converts audio frames into spectral snapshots. Scratch buffers are
// reused across frames to keep the hot path allocation-free.
type Analyzer struct {
	sampleRate float64
	frameSize  int
	bands      []Band
	gainDecay  float64

	fft      *fourier.FFT
	win      window.Values
	windowed []float64
	mags     []float64

	// Slow-decay running maxima per band, for auto-gain. Seeded at 1 so
	// silence maps to zero rather than full scale.
	maxima []float64

	raw  []float64
	norm []float64
}

// NewAnalyzer validates the band layout and prepares FFT state.
//
// Bands must be non-overlapping, in ascending order, and contiguous: each
// band's upper bound is the next band's lower bound, so the set partitions
// the analyzed range.
func NewAnalyzer(sampleRate float64, frameSize int, bands []Band, gainDecay float64) (*Analyzer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("dsp: sample rate must be positive, got %v", sampleRate)
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("dsp: frame size must be positive, got %d", frameSize)
	}
	if len(bands) == 0 {
		bands = DefaultBands()
	}
	for i, b := range bands {
		if b.Low < 0 || b.High <= b.Low {
			return nil, fmt.Errorf("dsp: band %q has invalid range [%v, %v)", b.Name, b.Low, b.High)
		}
		if i > 0 && bands[i-1].High != b.Low {
			return nil, fmt.Errorf("dsp: bands %q and %q do not partition the range: gap or overlap at %v..%v",
				bands[i-1].Name, b.Name, bands[i-1].High, b.Low)
		}
	}
	if gainDecay <= 0 || gainDecay >= 1 {
		gainDecay = 0.995
	}

	a := &Analyzer{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		bands:      bands,
		gainDecay:  gainDecay,
		fft:        fourier.NewFFT(frameSize),
		win:        window.NewValues(window.Hann, frameSize),
		windowed:   make([]float64, frameSize),
		mags:       make([]float64, frameSize/2+1),
		maxima:     make([]float64, len(bands)),
		raw:        make([]float64, len(bands)),
		norm:       make([]float64, len(bands)),
	}
	for i := range a.maxima {
		a.maxima[i] = 1
	}
	return a, nil
}

// Bands returns the configured band layout.
func (a *Analyzer) Bands() []Band { return a.bands }

// Analyze produces a Snapshot for one frame.
//
// Video frames pass through: the RGB triple becomes a three-element band set
// and the pixel's mean its energy. Audio frames must carry exactly the
// configured sample count or [ErrInputShape] is returned. An all-zero frame
// is valid and yields zero energies.
func (a *Analyzer) Analyze(f source.Frame) (Snapshot, error) {
	if f.Kind == source.KindVideo {
		bands := []float64{f.Pixel[0], f.Pixel[1], f.Pixel[2]}
		return Snapshot{
			Bands:    bands,
			RawBands: bands,
			Energy:   (f.Pixel[0] + f.Pixel[1] + f.Pixel[2]) / 3,
			Dominant: argmax(bands),
		}, nil
	}
	if len(f.Samples) != a.frameSize {
		return Snapshot{}, fmt.Errorf("%w: got %d samples, want %d", ErrInputShape, len(f.Samples), a.frameSize)
	}

	copy(a.windowed, f.Samples)
	a.win.Transform(a.windowed)

	coeffs := a.fft.Coefficients(nil, a.windowed)
	for i, c := range coeffs {
		a.mags[i] = cmplx.Abs(c)
	}

	binWidth := a.sampleRate / float64(a.frameSize)
	for i, b := range a.bands {
		lo, hi := binRange(b, binWidth, len(a.mags)-1)
		var sum float64
		n := 0
		for bin := lo; bin <= hi; bin++ {
			sum += a.mags[bin]
			n++
		}
		if n > 0 {
			// Mean magnitude keeps wide and narrow bands comparable.
			a.raw[i] = sum / float64(n)
		} else {
			a.raw[i] = 0
		}
	}

	// Auto-gain: running maxima decay slowly so normalization adapts to the
	// room instead of requiring a fixed input gain.
	for i, r := range a.raw {
		a.maxima[i] = math.Max(r, a.maxima[i]*a.gainDecay)
		if a.maxima[i] > 0 {
			a.norm[i] = clamp(r/a.maxima[i], 0, 1)
		} else {
			a.norm[i] = 0
		}
	}

	rms := rootMeanSquare(f.Samples)

	snap := Snapshot{
		Bands:      append([]float64(nil), a.norm...),
		RawBands:   append([]float64(nil), a.raw...),
		Energy:     clamp(rms*2, 0, 1), // typical music peaks near RMS 0.5
		Dominant:   argmax(a.norm),
		Magnitudes: a.mags,
	}
	return snap, nil
}

// binRange maps a band to the bins it owns. Each band covers the half-open
// frequency range [Low, High), so a boundary landing exactly on a bin assigns
// that bin to the upper band only and contiguous bands never share a bin.
func binRange(b Band, binWidth float64, maxBin int) (lo, hi int) {
	lo = int(math.Ceil(b.Low / binWidth))
	hi = int(math.Ceil(b.High/binWidth)) - 1
	if lo < 0 {
		lo = 0
	}
	if hi > maxBin {
		hi = maxBin
	}
	return lo, hi
}

func rootMeanSquare(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
