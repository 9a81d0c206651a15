// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Sink] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so tests can
// assert on counts and arguments, and expose fields that control return values.
//
// Typical usage:
//
//	src := mock.NewSource(8)
//	src.Push([]byte{1, 2})
//	sink := &mock.Sink{}
//	// run the relay, then inspect sink.Writes()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/livevoice/pkg/audio"
)

// ─── Source ──────────────────────────────────────────────────────────────────

// Source is a mock [audio.Source] fed through [Source.Push] and
// [Source.PushErr]. Read blocks until an item is available.
type Source struct {
	items chan sourceItem

	mu        sync.Mutex
	reads     int
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

type sourceItem struct {
	data []byte
	err  error
}

// NewSource returns a Source that buffers up to capacity pending items.
func NewSource(capacity int) *Source {
	return &Source{
		items: make(chan sourceItem, capacity),
		done:  make(chan struct{}),
	}
}

// Push queues a frame for a later Read.
func (s *Source) Push(data []byte) {
	s.items <- sourceItem{data: data}
}

// PushErr queues an error for a later Read.
func (s *Source) PushErr(err error) {
	s.items <- sourceItem{err: err}
}

// Read returns the next pushed item.
func (s *Source) Read(ctx context.Context) (audio.Frame, error) {
	select {
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	case <-s.done:
		return audio.Frame{}, audio.ErrClosed
	case it := <-s.items:
		s.mu.Lock()
		s.reads++
		s.mu.Unlock()
		if it.err != nil {
			return audio.Frame{}, it.err
		}
		return audio.Frame{
			Data:       it.data,
			SampleRate: audio.CaptureSampleRate,
			Channels:   1,
		}, nil
	}
}

// Reads returns how many items Read has consumed.
func (s *Source) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Pending returns how many pushed items have not been read yet.
func (s *Source) Pending() int {
	return len(s.items)
}

// Close marks the source closed. Idempotent.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

// Closed reports whether Close was called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ─── Sink ────────────────────────────────────────────────────────────────────

// Sink is a mock [audio.Sink] that records every written chunk.
type Sink struct {
	mu sync.Mutex

	// WriteErr, if non-nil, is returned by every Write after being recorded.
	WriteErr error

	// OnWrite, if set, is called synchronously with each chunk before Write
	// returns. Use it to block or to signal tests.
	OnWrite func(pcm []byte)

	writes [][]byte
	closed bool
}

// Write records pcm and returns WriteErr.
func (s *Sink) Write(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.writes = append(s.writes, cp)
	hook := s.OnWrite
	err := s.WriteErr
	s.mu.Unlock()

	if hook != nil {
		hook(cp)
	}
	return err
}

// Writes returns a copy of every chunk written so far, in order.
func (s *Sink) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

// Close marks the sink closed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
