package relay

import (
	"context"
	"sync"

	"github.com/MrWong99/livevoice/pkg/audio"
)

// DefaultInboundCapacity is the number of captured frames that may wait for
// upload before capture blocks.
const DefaultInboundCapacity = 5

// InboundQueue is the bounded FIFO between capture and uplink. Push blocks
// while the queue is full, which applies backpressure to the capture loop.
type InboundQueue struct {
	ch chan audio.Frame
}

// NewInboundQueue returns a queue holding up to capacity frames. A
// non-positive capacity selects [DefaultInboundCapacity].
func NewInboundQueue(capacity int) *InboundQueue {
	if capacity <= 0 {
		capacity = DefaultInboundCapacity
	}
	return &InboundQueue{ch: make(chan audio.Frame, capacity)}
}

// Push appends f, waiting for room if necessary.
func (q *InboundQueue) Push(ctx context.Context, f audio.Frame) error {
	select {
	case q.ch <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop removes the oldest frame, waiting for one if necessary.
func (q *InboundQueue) Pop(ctx context.Context) (audio.Frame, error) {
	select {
	case f := <-q.ch:
		return f, nil
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	}
}

// Len returns the number of queued frames.
func (q *InboundQueue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *InboundQueue) Cap() int { return cap(q.ch) }

// OutboundQueue is the unbounded FIFO of audio chunks between the downlink
// receiver and playback. Clear drops everything still queued, which is how
// an interruption silences a reply that has not been played yet.
type OutboundQueue struct {
	mu     sync.Mutex
	items  [][]byte
	notify chan struct{}
}

// NewOutboundQueue returns an empty queue.
func NewOutboundQueue() *OutboundQueue {
	return &OutboundQueue{notify: make(chan struct{}, 1)}
}

// Push appends chunk. It never blocks.
func (q *OutboundQueue) Push(chunk []byte) {
	q.mu.Lock()
	q.items = append(q.items, chunk)
	q.mu.Unlock()
	q.signal()
}

func (q *OutboundQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the oldest chunk, waiting for one if necessary.
func (q *OutboundQueue) Pop(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			chunk := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return chunk, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Clear discards all queued chunks and returns how many were dropped.
func (q *OutboundQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Len returns the number of queued chunks.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
