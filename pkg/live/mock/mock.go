// Package mock provides test doubles for the live package interfaces.
//
// Use Connector to verify Connect calls and hand out a controlled Session.
// Use Session to script server events and inspect the audio the relay sent.
//
// Example:
//
//	sess := mock.NewSession()
//	c := &mock.Connector{Session: sess}
//	s, _ := c.Connect(ctx, live.Config{Model: "m"})
//	sess.Emit(&live.Event{Audio: [][]byte{{1, 2}}, TurnComplete: true})
package mock

import (
	"context"
	"iter"
	"sync"

	"github.com/MrWong99/livevoice/pkg/live"
)

// ConnectCall records a single invocation of Connector.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the Config passed to Connect.
	Cfg live.Config
}

// Connector is a mock implementation of live.Connector.
type Connector struct {
	mu sync.Mutex

	// Session is returned by Connect. If nil, Connect returns a fresh Session.
	Session *Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (c *Connector) Connect(ctx context.Context, cfg live.Config) (live.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ConnectCalls = append(c.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if c.ConnectErr != nil {
		return nil, c.ConnectErr
	}
	if c.Session == nil {
		c.Session = NewSession()
	}
	return c.Session, nil
}

// Calls returns a copy of the recorded Connect calls.
func (c *Connector) Calls() []ConnectCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ConnectCall, len(c.ConnectCalls))
	copy(out, c.ConnectCalls)
	return out
}

// Session is a mock implementation of live.Session backed by a [live.Stream].
type Session struct {
	stream *live.Stream

	mu sync.Mutex

	// SendErr, if non-nil, is returned by SendAudio after the blob is recorded.
	SendErr error

	// OnSend, if set, is called with every recorded blob.
	OnSend func(live.Blob)

	sent       []live.Blob
	closeCount int
}

// NewSession returns a Session with room for 64 undelivered events.
func NewSession() *Session {
	return &Session{stream: live.NewStream(64)}
}

// Emit queues server events. It blocks while the event buffer is full.
func (s *Session) Emit(events ...*live.Event) {
	for _, ev := range events {
		s.stream.Push(context.Background(), ev)
	}
}

// Fail ends the event stream with err.
func (s *Session) Fail(err error) {
	s.stream.Finish(err)
}

// SendAudio records blob and returns SendErr.
func (s *Session) SendAudio(_ context.Context, blob live.Blob) error {
	s.mu.Lock()
	cp := live.Blob{MIMEType: blob.MIMEType, Data: append([]byte(nil), blob.Data...)}
	s.sent = append(s.sent, cp)
	hook, err := s.OnSend, s.SendErr
	s.mu.Unlock()

	if hook != nil {
		hook(cp)
	}
	return err
}

// Sent returns a copy of every blob passed to SendAudio, in order.
func (s *Session) Sent() []live.Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]live.Blob, len(s.sent))
	copy(out, s.sent)
	return out
}

// ReceiveTurn delegates to the underlying stream.
func (s *Session) ReceiveTurn(ctx context.Context) iter.Seq2[*live.Event, error] {
	return s.stream.ReceiveTurn(ctx)
}

// Close finishes the stream and counts the call.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closeCount++
	s.mu.Unlock()
	s.stream.Finish(nil)
	return nil
}

// CloseCount returns how many times Close was called.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

var (
	_ live.Connector = (*Connector)(nil)
	_ live.Session   = (*Session)(nil)
)
