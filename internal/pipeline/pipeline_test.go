package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/myselfshravan/wiz-hack/internal/mapper"
	"github.com/myselfshravan/wiz-hack/internal/source"
)

const (
	testRate  = 22050
	testFrame = 1024
)

// frameHop is the wall-clock spacing of consecutive test frames.
const frameHop = 46 * time.Millisecond

func sineFrame(freq, amp float64, ts time.Time) source.Frame {
	samples := make([]float64, testFrame)
	for i := range samples {
		samples[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	return source.Frame{Kind: source.KindAudio, Samples: samples, Time: ts}
}

func silentFrame(ts time.Time) source.Frame {
	return source.Frame{Kind: source.KindAudio, Samples: make([]float64, testFrame), Time: ts}
}

// lockstepSource hands out frames one per dispatch acknowledgement, so the
// worker sees every frame and tests stay deterministic.
type lockstepSource struct {
	frames []source.Frame
	ack    chan struct{}
	i      int
}

func (s *lockstepSource) Next(ctx context.Context) (source.Frame, error) {
	if s.i > 0 {
		select {
		case <-s.ack:
		case <-ctx.Done():
			return source.Frame{}, ctx.Err()
		}
	}
	if s.i >= len(s.frames) {
		return source.Frame{}, source.ErrEndOfStream
	}
	f := s.frames[s.i]
	s.i++
	return f, nil
}

// recordingDispatcher captures every dispatched target batch and acks the
// source so the next frame can flow.
type recordingDispatcher struct {
	mu         sync.Mutex
	batches    [][]mapper.Target
	flushes    int
	ack        chan struct{}
	onDispatch func(frame int)
}

func newLockstep(frames []source.Frame) (*lockstepSource, *recordingDispatcher) {
	ack := make(chan struct{}, 1)
	return &lockstepSource{frames: frames, ack: ack}, &recordingDispatcher{ack: ack}
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, targets []mapper.Target) error {
	d.mu.Lock()
	d.batches = append(d.batches, append([]mapper.Target(nil), targets...))
	n := len(d.batches)
	hook := d.onDispatch
	d.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	select {
	case d.ack <- struct{}{}:
	default:
	}
	return nil
}

func (d *recordingDispatcher) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushes++
	return nil
}

func (d *recordingDispatcher) batch(i int) []mapper.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batches[i]
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func defaultConfig(mode mapper.Mode) Config {
	vc := mapper.Config{Mode: mode}.Defaults()
	return Config{
		SampleRate: testRate,
		FrameSize:  testFrame,
		Visual:     vc,
	}
}

func TestPipelineRunsToEndOfStream(t *testing.T) {
	base := time.Now()
	var frames []source.Frame
	for i := 0; i < 8; i++ {
		frames = append(frames, sineFrame(100, 0.5, base.Add(time.Duration(i)*frameHop)))
	}
	src, disp := newLockstep(frames)

	p, err := New(defaultConfig(mapper.ModeFrequencyBands), src, disp)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if got := disp.count(); got != len(frames) {
		t.Errorf("dispatched %d batches, want %d", got, len(frames))
	}
	if disp.flushes == 0 {
		t.Error("pipeline should flush on shutdown")
	}
	st := p.Status()
	if st.State != StateIdle {
		t.Errorf("final state = %v, want idle", st.State)
	}
	if st.Frame != uint64(len(frames)) {
		t.Errorf("final frame = %d, want %d", st.Frame, len(frames))
	}
	// A 100 Hz tone lands in the bass band.
	last := disp.batch(disp.count() - 1)
	if len(last) != 1 {
		t.Fatalf("expected a single broadcast target, got %d", len(last))
	}
	if last[0].R <= last[0].G || last[0].R <= last[0].B {
		t.Errorf("bass tone should read red: %+v", last[0])
	}
}

func TestStrobeFlashesOnOnsetAndDecays(t *testing.T) {
	base := time.Now()
	var frames []source.Frame
	// Silence, then a sustained loud tone. The onset is the only spectral
	// change, so exactly one beat fires.
	const onset = 6
	for i := 0; i < 16; i++ {
		ts := base.Add(time.Duration(i) * frameHop)
		if i < onset {
			frames = append(frames, silentFrame(ts))
		} else {
			frames = append(frames, sineFrame(100, 0.5, ts))
		}
	}
	src, disp := newLockstep(frames)

	p, err := New(defaultConfig(mapper.ModeStrobe), src, disp)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(); err != nil {
		t.Fatal(err)
	}

	before := disp.batch(onset - 1)[0].Brightness
	flash := disp.batch(onset)[0].Brightness
	if flash <= before+30 {
		t.Errorf("onset should flash: before=%v flash=%v", before, flash)
	}

	// With the strobe's short release the flash must drain within a few
	// frame hops.
	settled := disp.batch(onset + 4)[0].Brightness
	if settled >= flash-20 {
		t.Errorf("flash should decay: flash=%v settled=%v", flash, settled)
	}
}

func TestReconfigureAppliesAtFrameBoundary(t *testing.T) {
	base := time.Now()
	var frames []source.Frame
	for i := 0; i < 6; i++ {
		frames = append(frames, sineFrame(100, 0.5, base.Add(time.Duration(i)*frameHop)))
	}
	src, disp := newLockstep(frames)

	p, err := New(defaultConfig(mapper.ModeFrequencyBands), src, disp)
	if err != nil {
		t.Fatal(err)
	}
	disp.onDispatch = func(frame int) {
		if frame == 3 {
			if err := p.Reconfigure(mapper.Config{Mode: mapper.ModePulse}.Defaults()); err != nil {
				t.Errorf("Reconfigure: %v", err)
			}
		}
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Wait(); err != nil {
		t.Fatal(err)
	}

	if st := p.Status(); st.Mode != mapper.ModePulse {
		t.Errorf("final mode = %v, want pulse", st.Mode)
	}
	// The third dispatch still ran under the old mode; the fourth is the
	// first pulse frame and its smoothers snap straight to the base color.
	old := disp.batch(2)[0]
	first := disp.batch(3)[0]
	if first.R != 255 || first.G != 200 || first.B != 150 {
		t.Errorf("first pulse frame = %+v, want base color 255/200/150", first)
	}
	if old.R == first.R && old.G == first.G && old.B == first.B {
		t.Error("mode change should alter the color output")
	}
}

func TestReconfigureRejectsInvalidConfig(t *testing.T) {
	base := time.Now()
	frames := []source.Frame{sineFrame(100, 0.5, base), sineFrame(100, 0.5, base.Add(frameHop))}
	src, disp := newLockstep(frames)

	p, err := New(defaultConfig(mapper.ModeEnergy), src, disp)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	bad := mapper.Config{Mode: mapper.Mode(42)}
	if err := p.Reconfigure(bad); err == nil {
		t.Error("invalid reconfigure should be rejected")
	}
	if err := p.Wait(); err != nil {
		t.Fatal(err)
	}
}

// blockingSource yields frames forever until the context is cancelled.
type blockingSource struct{}

func (blockingSource) Next(ctx context.Context) (source.Frame, error) {
	select {
	case <-ctx.Done():
		return source.Frame{}, ctx.Err()
	case <-time.After(time.Millisecond):
		return silentFrame(time.Now()), nil
	}
}

// nullDispatcher accepts everything.
type nullDispatcher struct{}

func (nullDispatcher) Dispatch(context.Context, []mapper.Target) error { return nil }
func (nullDispatcher) Flush() error                                    { return nil }

func TestStopInterruptsRunningPipeline(t *testing.T) {
	p, err := New(defaultConfig(mapper.ModeEnergy), blockingSource{}, nullDispatcher{})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := p.State(); got != StateRunning {
		t.Fatalf("state after start = %v, want running", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := p.State(); got != StateIdle {
		t.Errorf("state after stop = %v, want idle", got)
	}
	if err := p.Wait(); err != nil {
		t.Errorf("terminal error = %v, want nil", err)
	}
}

func TestLifecycleGuards(t *testing.T) {
	p, err := New(defaultConfig(mapper.ModeEnergy), blockingSource{}, nullDispatcher{})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Stop(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop while idle = %v, want ErrNotRunning", err)
	}
	if err := p.Reconfigure(mapper.Config{}.Defaults()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Reconfigure while idle = %v, want ErrNotRunning", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestSlotKeepsFreshestFrame(t *testing.T) {
	s := newSlot()
	base := time.Now()

	if dropped := s.offer(silentFrame(base)); dropped {
		t.Error("first offer should not drop")
	}
	if dropped := s.offer(silentFrame(base.Add(frameHop))); !dropped {
		t.Error("second offer should evict the unclaimed frame")
	}

	got := <-s.ch
	if !got.Time.Equal(base.Add(frameHop)) {
		t.Errorf("slot held stale frame at %v", got.Time)
	}
	select {
	case f := <-s.ch:
		t.Errorf("slot should be empty, got frame at %v", f.Time)
	default:
	}
}
