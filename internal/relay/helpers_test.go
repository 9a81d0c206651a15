package relay_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/livevoice/internal/history"
)

const waitTimeout = 2 * time.Second

type fixedGate bool

func (g fixedGate) Open() bool { return bool(g) }

// syncStore is a goroutine-safe history.Store that signals every save.
type syncStore struct {
	mu    sync.Mutex
	saves [][]history.Entry
	err   error
	saved chan struct{}
}

func newSyncStore() *syncStore {
	return &syncStore{saved: make(chan struct{}, 32)}
}

func (s *syncStore) Load(context.Context) ([]history.Entry, error) { return nil, nil }

func (s *syncStore) Save(_ context.Context, entries []history.Entry) error {
	s.mu.Lock()
	s.saves = append(s.saves, append([]history.Entry(nil), entries...))
	err := s.err
	s.mu.Unlock()
	select {
	case s.saved <- struct{}{}:
	default:
	}
	return err
}

func (s *syncStore) last() []history.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return nil
	}
	return s.saves[len(s.saves)-1]
}

type chanNotifier struct {
	entries     chan history.Entry
	interrupted chan struct{}
}

func newChanNotifier() *chanNotifier {
	return &chanNotifier{
		entries:     make(chan history.Entry, 32),
		interrupted: make(chan struct{}, 8),
	}
}

func (n *chanNotifier) Interrupted()              { n.interrupted <- struct{}{} }
func (n *chanNotifier) Finalized(e history.Entry) { n.entries <- e }

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for channel")
	}
	var zero T
	return zero
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func goRun(ctx context.Context, run func(context.Context) error) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- run(ctx) }()
	return errc
}
