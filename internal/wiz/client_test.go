package wiz

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/myselfshravan/wiz-hack/internal/mapper"
)

// fakeLight listens on loopback and forwards every received datagram.
func fakeLight(t *testing.T) (addr string, recv <-chan []byte) {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	ch := make(chan []byte, 64)
	go func() {
		buf := make([]byte, 2048)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				close(ch)
				return
			}
			pkt := make([]byte, n)
			copy(pkt, buf[:n])
			ch <- pkt
		}
	}()
	return conn.LocalAddr().String(), ch
}

func waitPacket(t *testing.T, recv <-chan []byte) []byte {
	t.Helper()
	select {
	case pkt, ok := <-recv:
		if !ok {
			t.Fatal("light closed")
		}
		return pkt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}
	return nil
}

func TestClientWireFormat(t *testing.T) {
	addr, recv := fakeLight(t)
	c, err := Dial(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	sent, err := c.Set(Pilot{R: 255, G: 128, B: 0, Dimming: 80})
	if err != nil {
		t.Fatal(err)
	}
	if !sent {
		t.Fatal("first command should send immediately")
	}

	var got struct {
		ID     uint64 `json:"id"`
		Method string `json:"method"`
		Params struct {
			R       int `json:"r"`
			G       int `json:"g"`
			B       int `json:"b"`
			Dimming int `json:"dimming"`
		} `json:"params"`
	}
	if err := json.Unmarshal(waitPacket(t, recv), &got); err != nil {
		t.Fatalf("invalid JSON on the wire: %v", err)
	}
	if got.Method != "setPilot" {
		t.Errorf("method = %q, want setPilot", got.Method)
	}
	if got.ID != 1 {
		t.Errorf("id = %d, want 1", got.ID)
	}
	if got.Params.R != 255 || got.Params.G != 128 || got.Params.B != 0 || got.Params.Dimming != 80 {
		t.Errorf("params = %+v", got.Params)
	}
}

func TestClientSequenceIncrements(t *testing.T) {
	addr, recv := fakeLight(t)
	c, err := Dial(addr, WithMaxRate(0))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	for i := 0; i < 3; i++ {
		if _, err := c.Set(Pilot{R: uint8(i)}); err != nil {
			t.Fatal(err)
		}
	}
	for want := uint64(1); want <= 3; want++ {
		var got struct {
			ID uint64 `json:"id"`
		}
		if err := json.Unmarshal(waitPacket(t, recv), &got); err != nil {
			t.Fatal(err)
		}
		if got.ID != want {
			t.Errorf("id = %d, want %d", got.ID, want)
		}
	}
}

func TestClientCoalescesUnderRateLimit(t *testing.T) {
	addr, recv := fakeLight(t)
	// 1 command/s: everything after the first call inside the test window
	// must coalesce.
	c, err := Dial(addr, WithMaxRate(1))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	sent, err := c.Set(Pilot{R: 1})
	if err != nil || !sent {
		t.Fatalf("first Set: sent=%v err=%v", sent, err)
	}
	for i := 2; i <= 10; i++ {
		sent, err := c.Set(Pilot{R: uint8(i)})
		if err != nil {
			t.Fatal(err)
		}
		if sent {
			t.Fatalf("Set %d should have coalesced", i)
		}
	}

	// Flush ships the latest pending state, not an intermediate one.
	if err := c.Flush(); err != nil {
		t.Fatal(err)
	}

	first := waitPacket(t, recv)
	flushed := waitPacket(t, recv)
	var p1, p2 struct {
		Params struct {
			R int `json:"r"`
		} `json:"params"`
	}
	if err := json.Unmarshal(first, &p1); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(flushed, &p2); err != nil {
		t.Fatal(err)
	}
	if p1.Params.R != 1 {
		t.Errorf("first datagram r = %d, want 1", p1.Params.R)
	}
	if p2.Params.R != 10 {
		t.Errorf("flushed datagram r = %d, want 10", p2.Params.R)
	}

	select {
	case pkt := <-recv:
		t.Fatalf("unexpected extra datagram: %s", pkt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientCloseFlushesPending(t *testing.T) {
	addr, recv := fakeLight(t)
	c, err := Dial(addr, WithMaxRate(1))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Set(Pilot{R: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Set(Pilot{R: 2, Dimming: 100}); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	waitPacket(t, recv) // initial send
	var last struct {
		Params struct {
			R       int `json:"r"`
			Dimming int `json:"dimming"`
		} `json:"params"`
	}
	if err := json.Unmarshal(waitPacket(t, recv), &last); err != nil {
		t.Fatal(err)
	}
	if last.Params.R != 2 || last.Params.Dimming != 100 {
		t.Errorf("close should flush the pending state, got %+v", last.Params)
	}

	if _, err := c.Set(Pilot{}); err != ErrClosed {
		t.Errorf("Set after Close = %v, want ErrClosed", err)
	}
}

func TestFromTargetClamps(t *testing.T) {
	for _, tt := range []struct {
		in   mapper.Target
		want Pilot
	}{
		{mapper.Target{R: 300, G: -10, B: 127.6, Brightness: 120}, Pilot{R: 255, G: 0, B: 128, Dimming: 100}},
		{mapper.Target{R: 0, G: 0, B: 0, Brightness: -5}, Pilot{}},
		{mapper.Target{R: 254.4, G: 1.5, B: 255, Brightness: 49.5}, Pilot{R: 254, G: 2, B: 255, Dimming: 50}},
	} {
		if got := FromTarget(tt.in); got != tt.want {
			t.Errorf("FromTarget(%+v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
