// Package ui renders the live pipeline status as a one-line terminal meter:
// band bars, beat flash, the current color swatch, and frame counters.
package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/myselfshravan/wiz-hack/internal/pipeline"
)

const defaultBarWidth = 12

var bandLabels = []string{"bass", "mid", "treble"}

// Renderer draws pipeline status lines. Safe for a single consumer.
type Renderer struct {
	out      io.Writer
	barWidth int

	labelStyle lipgloss.Style
	beatStyle  lipgloss.Style
	dimStyle   lipgloss.Style
}

// Option configures a [Renderer].
type Option func(*Renderer)

// WithBarWidth sets the band meter width in cells.
func WithBarWidth(w int) Option {
	return func(r *Renderer) {
		if w > 0 {
			r.barWidth = w
		}
	}
}

// New creates a renderer writing to out.
func New(out io.Writer, opts ...Option) *Renderer {
	r := &Renderer{
		out:        out,
		barWidth:   defaultBarWidth,
		labelStyle: lipgloss.NewStyle().Bold(true),
		beatStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		dimStyle:   lipgloss.NewStyle().Faint(true),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render formats one status line.
func (r *Renderer) Render(st pipeline.Status) string {
	var b strings.Builder

	b.WriteString(r.labelStyle.Render(st.Mode.String()))
	b.WriteByte(' ')

	for i, v := range st.Bands {
		label := fmt.Sprintf("b%d", i)
		if i < len(bandLabels) {
			label = bandLabels[i]
		}
		fmt.Fprintf(&b, "%s %s ", r.dimStyle.Render(label), meter(v, r.barWidth))
	}

	if st.Beat > 0 {
		b.WriteString(r.beatStyle.Render("●"))
	} else {
		b.WriteString(r.dimStyle.Render("·"))
	}
	b.WriteByte(' ')

	for _, t := range st.Targets {
		sw := lipgloss.NewStyle().
			Background(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", int(t.R), int(t.G), int(t.B))))
		b.WriteString(sw.Render("  "))
		fmt.Fprintf(&b, " %3.0f%% ", t.Brightness)
	}

	b.WriteString(r.dimStyle.Render(
		fmt.Sprintf("frame %d drop %d", st.Frame, st.Dropped)))
	return b.String()
}

// Run redraws at refresh rate until ctx ends, overwriting the line in place.
func (r *Renderer) Run(ctx context.Context, p *pipeline.Pipeline) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastFrame uint64

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case <-ticker.C:
			st := p.Status()
			if st.Frame == lastFrame && st.Frame != 0 {
				continue
			}
			lastFrame = st.Frame
			fmt.Fprintf(r.out, "\r\033[K%s", r.Render(st))
			if st.State == pipeline.StateIdle && st.Frame > 0 {
				fmt.Fprintln(r.out)
				return nil
			}
		}
	}
}

// meter draws v in [0, 1] as a fixed-width bar.
func meter(v float64, width int) string {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	filled := int(v*float64(width) + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
