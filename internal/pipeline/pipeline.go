// Package pipeline wires the frame path together: source → spectral analysis
// → beat detection → mode mapping → smoothing → dispatch. It owns the
// lifecycle state machine and the single worker goroutine that keeps every
// per-frame stage strictly ordered.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/myselfshravan/wiz-hack/internal/dsp"
	"github.com/myselfshravan/wiz-hack/internal/mapper"
	"github.com/myselfshravan/wiz-hack/internal/observe"
	"github.com/myselfshravan/wiz-hack/internal/source"
)

// State is the pipeline lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrAlreadyRunning is returned by Start on a non-idle pipeline.
	ErrAlreadyRunning = errors.New("pipeline: already running")

	// ErrNotRunning is returned by Stop and Reconfigure on an idle pipeline.
	ErrNotRunning = errors.New("pipeline: not running")
)

// Dispatcher is the output side of the pipeline. Production uses
// [github.com/myselfshravan/wiz-hack/internal/wiz.Dispatcher]; tests inject
// fakes to observe the exact target stream.
type Dispatcher interface {
	Dispatch(ctx context.Context, targets []mapper.Target) error
	Flush() error
}

// Config parameterises a pipeline run.
type Config struct {
	// SampleRate and FrameSize describe the incoming audio.
	SampleRate int
	FrameSize  int

	// Bands partitions the spectrum. Nil uses [dsp.DefaultBands].
	Bands []dsp.Band

	// GainDecay is the per-frame decay of the auto-gain maxima. Zero uses
	// the analyzer default.
	GainDecay float64

	// FluxWindow and FluxMultiplier tune beat detection. Zero values use
	// the dsp defaults.
	FluxWindow     int
	FluxMultiplier float64

	// Visual selects and tunes the mapping mode.
	Visual mapper.Config
}

// Status is one frame's published view of the pipeline, for the UI and for
// tests. Slices are owned by the Status; readers may keep them.
type Status struct {
	State     State
	Mode      mapper.Mode
	Frame     uint64
	Dropped   uint64
	Bands     []float64
	Energy    float64
	Beat      float64
	Threshold float64
	Targets   []mapper.Target
}

// Pipeline runs the frame loop. A Pipeline is single-run: construct, Start,
// Stop (or wait for the source to end), then construct anew.
type Pipeline struct {
	cfg     Config
	src     source.Source
	disp    Dispatcher
	log     *slog.Logger
	metrics *observe.Metrics

	state   atomic.Int32
	status  atomic.Pointer[Status]
	dropped atomic.Uint64
	reconf  chan mapper.Config

	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New validates cfg and builds an idle pipeline.
func New(cfg Config, src source.Source, disp Dispatcher, opts ...Option) (*Pipeline, error) {
	if src == nil {
		return nil, errors.New("pipeline: nil source")
	}
	if disp == nil {
		return nil, errors.New("pipeline: nil dispatcher")
	}
	if _, _, err := mapper.Resolve(cfg.Visual); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:    cfg,
		src:    src,
		disp:   disp,
		reconf: make(chan mapper.Config, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	p.status.Store(&Status{State: StateIdle, Mode: cfg.Visual.Mode})
	return p, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Status returns the most recently published frame view.
func (p *Pipeline) Status() Status { return *p.status.Load() }

// Start transitions idle→running and launches the reader and worker. The
// returned error covers construction problems only; runtime errors surface
// through [Pipeline.Wait].
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyRunning
	}

	analyzer, err := dsp.NewAnalyzer(float64(p.cfg.SampleRate), p.cfg.FrameSize, p.cfg.Bands, p.cfg.GainDecay)
	if err != nil {
		p.state.Store(int32(StateIdle))
		return err
	}
	m, prof, err := mapper.Resolve(p.cfg.Visual)
	if err != nil {
		p.state.Store(int32(StateIdle))
		return err
	}
	flux := dsp.NewFluxDetector(p.cfg.FluxWindow, p.cfg.FluxMultiplier)

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	p.log.Info("pipeline starting",
		"mode", p.cfg.Visual.Mode.String(),
		"sample_rate", p.cfg.SampleRate,
		"frame_size", p.cfg.FrameSize,
	)
	go p.run(runCtx, analyzer, flux, m, prof)
	return nil
}

// Stop transitions running→stopping, interrupts the frame loop, and waits for
// it to settle back to idle or for ctx to expire.
func (p *Pipeline) Stop(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrNotRunning
	}
	p.cancel()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the run finishes and returns its terminal error: nil for
// a clean stop or end of stream, the source error otherwise.
func (p *Pipeline) Wait() error {
	<-p.done
	return p.runErr
}

// Reconfigure swaps the visual configuration at the next frame boundary. The
// frame being processed finishes under the old configuration. A second
// reconfigure before the boundary replaces the first; only the latest wins.
func (p *Pipeline) Reconfigure(cfg mapper.Config) error {
	if State(p.state.Load()) != StateRunning {
		return ErrNotRunning
	}
	if _, _, err := mapper.Resolve(cfg); err != nil {
		return err
	}
	select {
	case <-p.reconf:
	default:
	}
	p.reconf <- cfg
	return nil
}

// run owns the frame loop until the source ends or the context is cancelled.
func (p *Pipeline) run(ctx context.Context, analyzer *dsp.Analyzer, flux *dsp.FluxDetector, m mapper.Mapper, prof mapper.Profile) {
	defer close(p.done)

	s := newSlot()
	g, ctx := errgroup.WithContext(ctx)

	// Reader: pulls frames as fast as the source yields them and lets the
	// slot evict stale ones.
	g.Go(func() error {
		defer s.close()
		for {
			f, err := p.src.Next(ctx)
			switch {
			case errors.Is(err, source.ErrEndOfStream):
				return nil
			case errors.Is(err, context.Canceled):
				return nil
			case err != nil:
				return fmt.Errorf("pipeline: source: %w", err)
			}
			if s.offer(f) {
				p.dropped.Add(1)
				p.metrics.FramesDropped.Add(ctx, 1)
			}
		}
	})

	// Worker: strictly ordered per-frame stages.
	g.Go(func() error {
		mode := p.cfg.Visual.Mode
		var smoothers []*dsp.ColorSmoother
		var frame uint64

		for {
			var f source.Frame
			var ok bool
			select {
			case <-ctx.Done():
				return nil
			case f, ok = <-s.ch:
				if !ok {
					return nil
				}
			}

			// Pending reconfigure applies between frames, never inside one.
			select {
			case vc := <-p.reconf:
				nm, nprof, err := mapper.Resolve(vc)
				if err != nil {
					// Validated at Reconfigure, so this is unreachable in
					// practice; keep the old configuration regardless.
					p.log.Error("reconfigure rejected", "error", err)
				} else {
					m, prof, mode = nm, nprof, vc.Mode
					smoothers = nil
					p.log.Info("mode changed", "mode", mode.String())
				}
			default:
			}

			start := time.Now()
			snap, err := analyzer.Analyze(f)
			if err != nil {
				p.log.Warn("frame analysis failed", "error", err)
				p.metrics.FramesSkipped.Add(ctx, 1)
				continue
			}

			beat := flux.Step(snap.Magnitudes)
			if beat > 0 {
				p.metrics.Beats.Add(ctx, 1)
			}

			targets := m.Map(snap, beat)
			for len(smoothers) < len(targets) {
				smoothers = append(smoothers, dsp.NewColorSmoother(dsp.ColorConfig{
					Attack:        prof.Attack,
					Release:       prof.Release,
					Jitter:        prof.Jitter,
					MinBrightness: prof.MinBrightness,
					MaxBrightness: prof.MaxBrightness,
				}))
			}
			for i := range targets {
				targets[i].R, targets[i].G, targets[i].B, targets[i].Brightness = smoothers[i].Apply(
					targets[i].R, targets[i].G, targets[i].B, targets[i].Brightness, f.Time)
			}

			if err := p.disp.Dispatch(ctx, targets); err != nil {
				p.log.Warn("dispatch failed", "error", err)
				p.metrics.FramesSkipped.Add(ctx, 1)
				continue
			}

			frame++
			p.metrics.RecordFrame(ctx, time.Since(start).Seconds())
			p.publish(Status{
				State:     p.State(),
				Mode:      mode,
				Frame:     frame,
				Dropped:   p.dropped.Load(),
				Bands:     append([]float64(nil), snap.Bands...),
				Energy:    snap.Energy,
				Beat:      beat,
				Threshold: flux.Threshold(),
				Targets:   append([]mapper.Target(nil), targets...),
			})
		}
	})

	err := g.Wait()
	if err != nil {
		p.log.Error("pipeline stopped", "error", err)
	}
	if ferr := p.disp.Flush(); ferr != nil {
		p.log.Warn("final flush failed", "error", ferr)
	}

	p.runErr = err
	p.state.Store(int32(StateIdle))
	final := p.Status()
	final.State = StateIdle
	p.publish(final)
	p.log.Info("pipeline idle", "frames", final.Frame, "dropped", final.Dropped)
}

func (p *Pipeline) publish(st Status) { p.status.Store(&st) }
