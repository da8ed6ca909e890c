// Package wiz speaks the WiZ local control protocol: JSON-RPC style documents
// in single UDP datagrams on port 38899. Each light gets its own rate-limited
// [Client]; a [Dispatcher] fans one frame's color targets out to all of them.
package wiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/myselfshravan/wiz-hack/internal/mapper"
)

const (
	// DefaultPort is the fixed WiZ control port.
	DefaultPort = 38899

	// DefaultMaxRate is the per-device datagram ceiling in commands per
	// second. WiZ firmware drops or queues faster streams.
	DefaultMaxRate = 50

	defaultWriteTimeout = 250 * time.Millisecond
)

var (
	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("wiz: client closed")

	// ErrUnreachable wraps a failed datagram write. The dispatcher logs it
	// and carries on with the other lights.
	ErrUnreachable = errors.New("wiz: device unreachable")
)

// Pilot is the payload of one setPilot command: color channels 0..255 and
// dimming percent 0..100.
type Pilot struct {
	R, G, B uint8
	Dimming uint8
}

// FromTarget rounds a smoothed color target into wire values.
func FromTarget(t mapper.Target) Pilot {
	return Pilot{
		R:       roundByte(t.R, 255),
		G:       roundByte(t.G, 255),
		B:       roundByte(t.B, 255),
		Dimming: roundByte(t.Brightness, 100),
	}
}

func roundByte(v, max float64) uint8 {
	return uint8(math.Round(math.Min(math.Max(v, 0), max)))
}

type pilotParams struct {
	R       int `json:"r"`
	G       int `json:"g"`
	B       int `json:"b"`
	Dimming int `json:"dimming"`
}

type command struct {
	ID     uint64      `json:"id"`
	Method string      `json:"method"`
	Params pilotParams `json:"params"`
}

// Client drives a single light. It enforces the per-device rate limit by
// coalescing: a command arriving inside the minimum interval replaces any
// pending one, and the latest pending state goes out on the next allowed
// send or an explicit [Client.Flush].
type Client struct {
	addr         string
	conn         net.Conn
	minInterval  time.Duration
	writeTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	lastSend time.Time
	pending  *Pilot
	seq      uint64
	closed   bool
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithMaxRate caps the datagram rate per second. Zero or negative disables
// the limit.
func WithMaxRate(perSecond int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.minInterval = 0
			return
		}
		c.minInterval = time.Second / time.Duration(perSecond)
	}
}

// WithWriteTimeout bounds each datagram write.
func WithWriteTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.writeTimeout = d }
}

// Dial connects a client to one light. addr may omit the port, in which case
// [DefaultPort] is used. The "connection" only binds the destination; no
// handshake happens.
func Dial(addr string, opts ...ClientOption) (*Client, error) {
	if !strings.Contains(addr, ":") {
		addr = fmt.Sprintf("%s:%d", addr, DefaultPort)
	}
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("wiz: dial %s: %w", addr, err)
	}
	c := &Client{
		addr:         addr,
		conn:         conn,
		minInterval:  time.Second / DefaultMaxRate,
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Addr returns the resolved destination address.
func (c *Client) Addr() string { return c.addr }

// Set queues p for the light. It returns sent=true when a datagram actually
// went out and sent=false when the command was coalesced behind the rate
// limit; coalesced state is not lost, it ships on the next Set or Flush.
func (c *Client) Set(p Pilot) (sent bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	now := c.now()
	if c.minInterval > 0 && now.Sub(c.lastSend) < c.minInterval {
		c.pending = &p
		return false, nil
	}
	c.pending = nil
	return true, c.send(p, now)
}

// Flush sends any coalesced command immediately, ignoring the rate limit.
// A no-op when nothing is pending.
func (c *Client) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.pending == nil {
		return nil
	}
	p := *c.pending
	c.pending = nil
	return c.send(p, c.now())
}

// Close flushes a pending command and releases the socket so the light is
// left showing the last requested state.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	var errs []error
	if c.pending != nil {
		errs = append(errs, c.send(*c.pending, c.now()))
		c.pending = nil
	}
	c.closed = true
	errs = append(errs, c.conn.Close())
	return errors.Join(errs...)
}

// send marshals and writes one setPilot datagram. Caller holds c.mu.
func (c *Client) send(p Pilot, now time.Time) error {
	c.seq++
	buf, err := json.Marshal(command{
		ID:     c.seq,
		Method: "setPilot",
		Params: pilotParams{R: int(p.R), G: int(p.G), B: int(p.B), Dimming: int(p.Dimming)},
	})
	if err != nil {
		return fmt.Errorf("wiz: encode command: %w", err)
	}
	c.lastSend = now
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(now.Add(c.writeTimeout))
	}
	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, c.addr, err)
	}
	return nil
}
