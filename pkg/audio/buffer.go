package audio

import (
	"context"
	"sync"
)

// FrameBuffer accumulates PCM bytes pushed by a device callback and hands them
// out as fixed-size frames. When more than limit bytes are pending, the oldest
// bytes are discarded and the next read reports [ErrOverflow].
//
// Write is designed to be called from the device's audio thread; ReadFrame from
// a single consumer goroutine. All methods are safe for concurrent use.
type FrameBuffer struct {
	frameBytes int
	limit      int

	mu         sync.Mutex
	cond       *sync.Cond
	buf        []byte
	overflowed bool
	closed     bool
}

// NewFrameBuffer returns a buffer that yields frames of frameBytes bytes and
// holds at most limit pending bytes. A limit smaller than one frame is raised
// to four frames.
func NewFrameBuffer(frameBytes, limit int) *FrameBuffer {
	if limit < frameBytes {
		limit = 4 * frameBytes
	}
	b := &FrameBuffer{
		frameBytes: frameBytes,
		limit:      limit,
		buf:        make([]byte, 0, limit),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write appends p to the pending bytes. It never blocks.
func (b *FrameBuffer) Write(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.overflowed = true
	}
	b.cond.Signal()
}

// ReadFrame blocks until a full frame is pending and returns a copy of it.
// It returns [ErrOverflow] once after data has been discarded, [ErrClosed]
// after Close, or the context error if ctx ends first.
func (b *FrameBuffer) ReadFrame(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.buf) < b.frameBytes && !b.closed && !b.overflowed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.cond.Wait()
	}
	if b.closed {
		return nil, ErrClosed
	}
	if b.overflowed {
		b.overflowed = false
		return nil, ErrOverflow
	}

	frame := make([]byte, b.frameBytes)
	copy(frame, b.buf)
	b.buf = append(b.buf[:0], b.buf[b.frameBytes:]...)
	return frame, nil
}

// Pending returns the number of buffered bytes.
func (b *FrameBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Close wakes any blocked reader and makes further reads fail with [ErrClosed].
func (b *FrameBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}
