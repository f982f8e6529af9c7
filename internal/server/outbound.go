package server

import "sync"

// Outbound is the send side of one connection. Send must never block: the
// Registry calls it while holding its lock and the Broadcaster calls it once
// per recipient in a loop.
type Outbound interface {
	Send(f Frame) error
	Close()
}

// outboundQueue is a bounded Outbound drained by the connection's write pump.
// A full queue means the reader is too slow; the frame is refused and
// onOverflow is invoked so the connection can be torn down by its own task.
type outboundQueue struct {
	mu         sync.Mutex
	frames     chan Frame
	closed     bool
	onOverflow func()
}

func newOutboundQueue(size int, onOverflow func()) *outboundQueue {
	if size <= 0 {
		size = 1
	}
	return &outboundQueue{
		frames:     make(chan Frame, size),
		onOverflow: onOverflow,
	}
}

func (q *outboundQueue) Send(f Frame) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrOutboundClosed
	}
	select {
	case q.frames <- f:
		q.mu.Unlock()
		return nil
	default:
	}
	q.mu.Unlock()

	if q.onOverflow != nil {
		q.onOverflow()
	}
	return ErrSlowConsumer
}

// Close stops accepting frames. Frames already queued are still delivered
// before the write pump sends the close frame.
func (q *outboundQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.frames)
}

func (q *outboundQueue) Frames() <-chan Frame {
	return q.frames
}
