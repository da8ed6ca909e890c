package source

import (
	"fmt"
	"io"

	"github.com/ebitengine/oto/v3"
)

// player pushes decoded PCM to the speakers via oto. Writes block while the
// playback buffer is full, which paces the file source at real time so the
// lights track what is actually heard.
type player struct {
	ctx *oto.Context
	p   *oto.Player
	pw  *io.PipeWriter
}

func newPlayer(sampleRate, channels int) (*player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("source: init audio output: %w", err)
	}
	<-ready

	pr, pw := io.Pipe()
	pl := &player{ctx: ctx, pw: pw}
	pl.p = ctx.NewPlayer(pr)
	pl.p.Play()
	return pl, nil
}

func (pl *player) Write(b []byte) (int, error) {
	return pl.pw.Write(b)
}

func (pl *player) Close() error {
	_ = pl.pw.Close()
	return pl.p.Close()
}
