package wiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/myselfshravan/wiz-hack/internal/mapper"
	"github.com/myselfshravan/wiz-hack/internal/observe"
)

// Dispatcher fans one frame's color targets out to all configured lights.
// A frame with a single target is broadcast; a frame with several assigns
// target i mod N to light i, which is how the multi mode splits bands across
// lights. Send failures are logged and counted, never fatal: one unplugged
// light must not stall the show for the rest.
type Dispatcher struct {
	clients    []*Client
	clientOpts []ClientOption
	log        *slog.Logger
	metrics    *observe.Metrics
}

// DispatcherOption configures a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithClientOptions forwards options to every dialed client.
func WithClientOptions(opts ...ClientOption) DispatcherOption {
	return func(d *Dispatcher) { d.clientOpts = opts }
}

// NewDispatcher dials every device address. All dials must succeed; a partial
// fleet at startup is a configuration problem, unlike transient send failures
// later.
func NewDispatcher(devices []string, opts ...DispatcherOption) (*Dispatcher, error) {
	if len(devices) == 0 {
		return nil, errors.New("wiz: no devices configured")
	}
	d := &Dispatcher{}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}

	for _, addr := range devices {
		c, err := Dial(addr, d.clientOpts...)
		if err != nil {
			for _, dialed := range d.clients {
				_ = dialed.Close()
			}
			return nil, err
		}
		d.clients = append(d.clients, c)
	}
	d.log.Info("lights connected", "devices", len(d.clients))
	return d, nil
}

// Devices returns the resolved addresses of all connected lights.
func (d *Dispatcher) Devices() []string {
	addrs := make([]string, len(d.clients))
	for i, c := range d.clients {
		addrs[i] = c.Addr()
	}
	return addrs
}

// Dispatch sends targets to the fleet concurrently and returns once every
// light has been attempted. Only an empty target list is an error; per-device
// failures are absorbed.
func (d *Dispatcher) Dispatch(ctx context.Context, targets []mapper.Target) error {
	if len(targets) == 0 {
		return fmt.Errorf("wiz: dispatch with no targets")
	}
	g, ctx := errgroup.WithContext(ctx)
	for i, c := range d.clients {
		t := targets[i%len(targets)]
		g.Go(func() error {
			sent, err := c.Set(FromTarget(t))
			switch {
			case err != nil:
				d.metrics.RecordSend(ctx, c.Addr(), err)
				d.log.Warn("light send failed", "device", c.Addr(), "error", err)
			case sent:
				d.metrics.RecordSend(ctx, c.Addr(), nil)
			default:
				d.metrics.CommandsCoalesced.Add(ctx, 1, observe.DeviceAttr(c.Addr()))
			}
			return nil
		})
	}
	return g.Wait()
}

// Flush pushes any coalesced command on every light.
func (d *Dispatcher) Flush() error {
	var errs []error
	for _, c := range d.clients {
		if err := c.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending state and releases all sockets.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, c := range d.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
