// Package source provides the frame producers that feed the visualizer
// pipeline: decoded audio files, raw PCM readers, and the Frame type all
// downstream stages consume.
package source

import (
	"context"
	"errors"
	"time"
)

// ErrEndOfStream is returned by [Source.Next] when the underlying signal is
// exhausted. It is the only terminal condition a source may report; every
// other error is per-frame and recoverable.
var ErrEndOfStream = errors.New("source: end of stream")

// Kind discriminates what a [Frame] carries.
type Kind int

const (
	// KindAudio frames carry a fixed-size mono sample buffer.
	KindAudio Kind = iota

	// KindVideo frames carry a pre-reduced RGB triple produced by an
	// external frame decoder. The analyzer passes the triple through as a
	// one-element band set.
	KindVideo
)

// Frame is one unit of input signal. A frame is immutable once produced and
// owned exclusively by the pipeline stage currently processing it.
type Frame struct {
	Kind Kind

	// Samples holds mono samples in [-1, 1]. Only set for KindAudio.
	Samples []float64

	// Pixel holds an RGB triple in [0, 1] per channel. Only set for KindVideo.
	Pixel [3]float64

	// Time is the acquisition timestamp. Smoothing time constants are
	// evaluated against frame time, not wall-clock time, so recorded and
	// live signals behave identically.
	Time time.Time
}

// Source produces frames at its native cadence.
//
// Next blocks until a frame is available, the context is cancelled, or the
// stream ends, in which case it returns [ErrEndOfStream]. Audio sources emit
// a fixed sample count per frame; the analyzer rejects anything else.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

// monoFloat converts interleaved 16-bit PCM samples to mono float64 in
// [-1, 1], averaging across channels. dst is reused when large enough.
func monoFloat(pcm []int16, channels int, dst []float64) []float64 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / channels
	if cap(dst) < frames {
		dst = make([]float64, frames)
	} else {
		dst = dst[:frames]
	}
	idx := 0
	for i := range frames {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += float64(pcm[idx]) / 32768
			idx++
		}
		dst[i] = sum / float64(channels)
	}
	return dst
}
