package live

import (
	"context"
	"iter"
	"sync"
)

// Stream is the plumbing shared by session implementations: a receive loop
// pushes decoded events and eventually calls Finish; ReceiveTurn hands them
// to the consumer one turn at a time.
type Stream struct {
	events chan *Event
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// NewStream returns a Stream that buffers up to buffer undelivered events.
func NewStream(buffer int) *Stream {
	return &Stream{
		events: make(chan *Event, buffer),
		done:   make(chan struct{}),
	}
}

// Push delivers ev. It blocks while the buffer is full and returns false if
// the stream finished or ctx was cancelled first.
func (s *Stream) Push(ctx context.Context, ev *Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Finish ends the stream. A nil err means an orderly shutdown; readers then
// observe [ErrSessionClosed]. Only the first call has an effect.
func (s *Stream) Finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// Done is closed once Finish has been called.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err returns the error the stream finished with, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) closedErr() error {
	if err := s.Err(); err != nil {
		return err
	}
	return ErrSessionClosed
}

// ReceiveTurn implements [Session.ReceiveTurn]. Events buffered before Finish
// are still delivered.
func (s *Stream) ReceiveTurn(ctx context.Context) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		for {
			var ev *Event
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			case ev = <-s.events:
			case <-s.done:
				select {
				case ev = <-s.events:
				default:
					yield(nil, s.closedErr())
					return
				}
			}
			if !yield(ev, nil) || ev.TurnComplete {
				return
			}
		}
	}
}
