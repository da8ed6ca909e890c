package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// decoder yields interleaved 16-bit little-endian PCM via Read. The byte
// stream doubles as playback input, so every format is normalised to the
// same output shape.
type decoder interface {
	io.Reader
	SampleRate() int
	ChannelCount() int
}

// newDecoder selects a format-specific decoder by file extension.
func newDecoder(f *os.File) (decoder, error) {
	ext := strings.ToLower(filepath.Ext(f.Name()))
	switch ext {
	case ".mp3":
		return newMP3Decoder(f)
	case ".wav":
		return newWAVDecoder(f)
	case ".flac":
		return newFLACDecoder(f)
	case ".ogg":
		return newOGGDecoder(f)
	default:
		return nil, fmt.Errorf("source: unsupported audio format %q", ext)
	}
}

// --- MP3 ---

type mp3Decoder struct {
	dec *mp3.Decoder
}

func newMP3Decoder(f *os.File) (*mp3Decoder, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("source: decode mp3: %w", err)
	}
	return &mp3Decoder{dec: dec}, nil
}

func (d *mp3Decoder) Read(p []byte) (int, error) { return d.dec.Read(p) }
func (d *mp3Decoder) SampleRate() int            { return d.dec.SampleRate() }
func (d *mp3Decoder) ChannelCount() int          { return 2 }

// --- WAV ---

type wavDecoder struct {
	file       *os.File
	sampleRate int
	channels   int
	bitDepth   int
	remaining  int64 // PCM bytes left in the data chunk
}

func newWAVDecoder(f *os.File) (*wavDecoder, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("source: invalid WAV file")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("source: reading WAV PCM data: %w", err)
	}
	return &wavDecoder{
		file:       f,
		sampleRate: int(dec.SampleRate),
		channels:   int(dec.NumChans),
		bitDepth:   int(dec.BitDepth),
		remaining:  dec.PCMLen(),
	}, nil
}

func (d *wavDecoder) Read(p []byte) (int, error) {
	if d.remaining <= 0 {
		return 0, io.EOF
	}
	srcBytes := d.bitDepth / 8
	want := len(p) / 2 * srcBytes
	if int64(want) > d.remaining {
		want = int(d.remaining)
	}
	if want < srcBytes {
		return 0, io.EOF
	}
	raw := make([]byte, want)
	n, err := io.ReadFull(d.file, raw)
	n -= n % srcBytes
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}
	d.remaining -= int64(n)

	samples := n / srcBytes
	for i := 0; i < samples; i++ {
		off := i * srcBytes
		var s int
		switch d.bitDepth {
		case 8:
			// 8-bit WAV is unsigned.
			s = (int(raw[off]) - 128) << 8
		case 16:
			s = int(int16(binary.LittleEndian.Uint16(raw[off:])))
		case 24:
			v := int32(raw[off]) | int32(raw[off+1])<<8 | int32(raw[off+2])<<16
			if v&0x800000 != 0 {
				v |= ^int32(0xFFFFFF)
			}
			s = int(v >> 8)
		case 32:
			s = int(int32(binary.LittleEndian.Uint32(raw[off:])) >> 16)
		default:
			return 0, fmt.Errorf("source: unsupported WAV bit depth %d", d.bitDepth)
		}
		binary.LittleEndian.PutUint16(p[i*2:], uint16(int16(clampSample(s))))
	}
	if err == io.ErrUnexpectedEOF {
		err = nil // partial read is fine, next call reports EOF
	}
	return samples * 2, err
}

func (d *wavDecoder) SampleRate() int   { return d.sampleRate }
func (d *wavDecoder) ChannelCount() int { return d.channels }

// --- FLAC ---

type flacDecoder struct {
	stream   *flac.Stream
	buf      []byte
	rate     int
	channels int
	bps      int
}

func newFLACDecoder(f *os.File) (*flacDecoder, error) {
	stream, err := flac.New(f)
	if err != nil {
		return nil, fmt.Errorf("source: decode flac: %w", err)
	}
	info := stream.Info
	return &flacDecoder{
		stream:   stream,
		rate:     int(info.SampleRate),
		channels: int(info.NChannels),
		bps:      int(info.BitsPerSample),
	}, nil
}

func (d *flacDecoder) Read(p []byte) (int, error) {
	if len(d.buf) > 0 {
		n := copy(p, d.buf)
		d.buf = d.buf[n:]
		return n, nil
	}

	frame, err := d.stream.ParseNext()
	if err != nil {
		return 0, err
	}
	nSamples := int(frame.Subframes[0].NSamples)
	raw := make([]byte, nSamples*d.channels*2)
	for i := 0; i < nSamples; i++ {
		for ch := 0; ch < d.channels; ch++ {
			s := int(frame.Subframes[ch].Samples[i])
			switch {
			case d.bps > 16:
				s >>= (d.bps - 16)
			case d.bps < 16:
				s <<= (16 - d.bps)
			}
			off := (i*d.channels + ch) * 2
			binary.LittleEndian.PutUint16(raw[off:], uint16(int16(clampSample(s))))
		}
	}

	n := copy(p, raw)
	if n < len(raw) {
		d.buf = raw[n:]
	}
	return n, nil
}

func (d *flacDecoder) SampleRate() int   { return d.rate }
func (d *flacDecoder) ChannelCount() int { return d.channels }

// --- OGG Vorbis ---

type oggDecoder struct {
	reader   *oggvorbis.Reader
	buf      []byte
	rate     int
	channels int
}

func newOGGDecoder(f *os.File) (*oggDecoder, error) {
	reader, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("source: decode ogg: %w", err)
	}
	return &oggDecoder{
		reader:   reader,
		rate:     reader.SampleRate(),
		channels: reader.Channels(),
	}, nil
}

func (d *oggDecoder) Read(p []byte) (int, error) {
	if len(d.buf) > 0 {
		n := copy(p, d.buf)
		d.buf = d.buf[n:]
		return n, nil
	}

	samples := make([]float32, len(p)/2)
	n, err := d.reader.Read(samples)
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	raw := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := samples[i]
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(int16(s*32767)))
	}

	written := copy(p, raw)
	if written < len(raw) {
		d.buf = raw[written:]
	}
	return written, nil
}

func (d *oggDecoder) SampleRate() int   { return d.rate }
func (d *oggDecoder) ChannelCount() int { return d.channels }

func clampSample(s int) int {
	if s > 32767 {
		return 32767
	}
	if s < -32768 {
		return -32768
	}
	return s
}
