package pipeline

import "github.com/myselfshravan/wiz-hack/internal/source"

// slot is a single-frame mailbox between the reader and the worker. When the
// worker lags, offering a new frame evicts the unclaimed older one, so the
// lights always follow the freshest audio instead of building up latency.
// Single producer; the reader alone writes and closes the channel.
type slot struct {
	ch chan source.Frame
}

func newSlot() *slot {
	return &slot{ch: make(chan source.Frame, 1)}
}

// offer makes f the slot's content and reports whether an unclaimed frame
// was evicted to do it.
func (s *slot) offer(f source.Frame) (dropped bool) {
	for {
		select {
		case s.ch <- f:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			dropped = true
		default:
		}
	}
}

// close marks the end of the stream. Only the producer may call it.
func (s *slot) close() { close(s.ch) }
