package wiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"
)

// discoverProbe is a getPilot broadcast; every WiZ light on the segment
// answers with its current state, which is all we need to learn addresses.
const discoverProbe = `{"id":1,"method":"getPilot","params":{}}`

const defaultDiscoverWindow = 3 * time.Second

// discoverConfig holds the discovery knobs.
type discoverConfig struct {
	port      int
	window    time.Duration
	broadcast net.IP
}

// DiscoverOption configures [Discover].
type DiscoverOption func(*discoverConfig)

// WithDiscoverPort overrides the probe port. Default [DefaultPort].
func WithDiscoverPort(port int) DiscoverOption {
	return func(c *discoverConfig) { c.port = port }
}

// WithDiscoverWindow sets how long to collect replies. Default 3s.
func WithDiscoverWindow(d time.Duration) DiscoverOption {
	return func(c *discoverConfig) { c.window = d }
}

// WithBroadcastAddr overrides the probe destination, e.g. a subnet-directed
// broadcast like 192.168.1.255.
func WithBroadcastAddr(ip net.IP) DiscoverOption {
	return func(c *discoverConfig) { c.broadcast = ip }
}

// Discover broadcasts a state probe and collects the IPs of every light that
// answers inside the window. Replies that are not valid JSON documents are
// ignored; other gear on the segment may answer broadcasts with noise. The
// returned addresses are sorted and deduplicated, without ports.
func Discover(ctx context.Context, opts ...DiscoverOption) ([]string, error) {
	cfg := discoverConfig{
		port:      DefaultPort,
		window:    defaultDiscoverWindow,
		broadcast: net.IPv4bcast,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("wiz: discovery socket: %w", err)
	}
	defer conn.Close()

	dst := &net.UDPAddr{IP: cfg.broadcast, Port: cfg.port}
	if _, err := conn.WriteToUDP([]byte(discoverProbe), dst); err != nil {
		return nil, fmt.Errorf("wiz: discovery probe: %w", err)
	}

	deadline := time.Now().Add(cfg.window)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var found []string
	buf := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			break
		}
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				break
			}
			return found, fmt.Errorf("wiz: discovery read: %w", err)
		}

		var reply struct {
			Method string          `json:"method"`
			Result json.RawMessage `json:"result"`
		}
		if json.Unmarshal(buf[:n], &reply) != nil {
			continue
		}
		if reply.Result == nil && reply.Method == "" {
			continue
		}
		ip := src.IP.String()
		if !seen[ip] {
			seen[ip] = true
			found = append(found, ip)
		}
	}
	sort.Strings(found)
	return found, nil
}
