package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// PCMSource reads signed 16-bit little-endian mono PCM from an io.Reader and
// slices it into fixed-size frames. It is the bridge to external capture
// tools, e.g.:
//
//	arecord -f S16_LE -c 1 -r 22050 -t raw | wizsync -stdin
//
// Live capture is already paced by the capturing process, so PCMSource does
// not sleep between frames.
type PCMSource struct {
	r         io.Reader
	frameSize int
	raw       []byte
}

// NewPCM returns a PCMSource yielding frames of frameSize samples.
func NewPCM(r io.Reader, frameSize int) (*PCMSource, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("source: frame size must be positive, got %d", frameSize)
	}
	return &PCMSource{
		r:         r,
		frameSize: frameSize,
		raw:       make([]byte, frameSize*2),
	}, nil
}

// Next reads one frame of raw PCM. A short tail is zero-padded.
func (s *PCMSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	n, err := io.ReadFull(s.r, s.raw)
	n -= n % 2
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrEndOfStream
		}
		return Frame{}, fmt.Errorf("source: read pcm: %w", err)
	}

	samples := make([]float64, s.frameSize)
	for i := 0; i < n/2; i++ {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(s.raw[i*2:]))) / 32768
	}
	return Frame{Kind: KindAudio, Samples: samples, Time: time.Now()}, nil
}
