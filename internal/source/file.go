package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// FileOption configures a [FileSource].
type FileOption func(*FileSource)

// WithPlayback enables speaker output while frames are produced. Playback
// doubles as the pacing mechanism: writes to the audio device block at real
// time, so no explicit sleep is needed.
func WithPlayback() FileOption {
	return func(s *FileSource) { s.playback = true }
}

// FileSource decodes an audio file (wav, mp3, flac, ogg) into fixed-size mono
// frames at the file's native sample rate.
type FileSource struct {
	file *os.File
	dec  decoder

	frameSize int
	playback  bool
	play      *player

	raw  []byte // one frame of interleaved 16-bit PCM
	pcm  []int16
	mono []float64

	pos   time.Duration // stream position of the next frame
	start time.Time     // wall clock at first frame, for silent pacing
}

// OpenFile opens path and prepares a source yielding frames of frameSize
// mono samples.
func OpenFile(path string, frameSize int, opts ...FileOption) (*FileSource, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("source: frame size must be positive, got %d", frameSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %q: %w", path, err)
	}
	dec, err := newDecoder(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	s := &FileSource{
		file:      f,
		dec:       dec,
		frameSize: frameSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	channels := dec.ChannelCount()
	s.raw = make([]byte, frameSize*channels*2)
	s.pcm = make([]int16, frameSize*channels)
	s.mono = make([]float64, frameSize)

	if s.playback {
		s.play, err = newPlayer(dec.SampleRate(), channels)
		if err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

// SampleRate reports the decoded stream's sample rate in Hz.
func (s *FileSource) SampleRate() int { return s.dec.SampleRate() }

// Next decodes and returns the next frame. Without playback it sleeps until
// the frame's stream position is reached so the light show runs at song speed.
func (s *FileSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	n, err := io.ReadFull(s.dec, s.raw)
	n -= n % 2
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrEndOfStream
		}
		return Frame{}, fmt.Errorf("source: decode: %w", err)
	}

	if s.play != nil {
		if _, err := s.play.Write(s.raw[:n]); err != nil {
			return Frame{}, fmt.Errorf("source: playback: %w", err)
		}
	} else if err := s.pace(ctx); err != nil {
		return Frame{}, err
	}

	channels := s.dec.ChannelCount()
	samples := n / 2
	for i := 0; i < samples; i++ {
		s.pcm[i] = int16(binary.LittleEndian.Uint16(s.raw[i*2:]))
	}
	// Zero-pad a short tail frame so the analyzer always sees frameSize samples.
	for i := samples; i < len(s.pcm); i++ {
		s.pcm[i] = 0
	}
	s.mono = monoFloat(s.pcm, channels, s.mono)

	s.pos += time.Duration(float64(s.frameSize) / float64(s.dec.SampleRate()) * float64(time.Second))

	out := make([]float64, s.frameSize)
	copy(out, s.mono)
	return Frame{Kind: KindAudio, Samples: out, Time: time.Now()}, nil
}

// pace sleeps until the current stream position is due relative to the wall
// clock, giving un-played files the same cadence as played ones.
func (s *FileSource) pace(ctx context.Context) error {
	if s.start.IsZero() {
		s.start = time.Now()
		return nil
	}
	due := s.start.Add(s.pos)
	wait := time.Until(due)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Close releases the file handle and, when playback is enabled, the audio
// device.
func (s *FileSource) Close() error {
	var errs []error
	if s.play != nil {
		errs = append(errs, s.play.Close())
	}
	errs = append(errs, s.file.Close())
	return errors.Join(errs...)
}
