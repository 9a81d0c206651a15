package live_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/livevoice/pkg/live"
	"github.com/MrWong99/livevoice/pkg/live/mock"
)

func collectTurn(t *testing.T, ctx context.Context, s live.Session) ([]*live.Event, error) {
	t.Helper()
	var evs []*live.Event
	for ev, err := range s.ReceiveTurn(ctx) {
		if err != nil {
			return evs, err
		}
		evs = append(evs, ev)
	}
	return evs, nil
}

func TestStream_TurnEndsAfterTurnComplete(t *testing.T) {
	t.Parallel()

	s := live.NewStream(8)
	ctx := context.Background()
	s.Push(ctx, &live.Event{InputTranscript: "hi"})
	s.Push(ctx, &live.Event{Audio: [][]byte{{1}}})
	s.Push(ctx, &live.Event{TurnComplete: true})
	s.Push(ctx, &live.Event{InputTranscript: "next"})

	var got []*live.Event
	for ev, err := range s.ReceiveTurn(ctx) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, ev)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if !got[2].TurnComplete {
		t.Error("last event of the turn should carry TurnComplete")
	}

	// The following turn starts with the event pushed after TurnComplete.
	for ev, err := range s.ReceiveTurn(ctx) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.InputTranscript != "next" {
			t.Errorf("InputTranscript = %q, want %q", ev.InputTranscript, "next")
		}
		break
	}
}

func TestStream_FinishDeliversBufferedEventsFirst(t *testing.T) {
	t.Parallel()

	s := live.NewStream(8)
	s.Push(context.Background(), &live.Event{ModelText: "a"})
	s.Push(context.Background(), &live.Event{ModelText: "b"})
	boom := errors.New("boom")
	s.Finish(boom)

	var texts []string
	var gotErr error
	for ev, err := range s.ReceiveTurn(context.Background()) {
		if err != nil {
			gotErr = err
			break
		}
		texts = append(texts, ev.ModelText)
	}
	if len(texts) != 2 || texts[0] != "a" || texts[1] != "b" {
		t.Errorf("texts = %v, want [a b]", texts)
	}
	if !errors.Is(gotErr, boom) {
		t.Errorf("err = %v, want %v", gotErr, boom)
	}
}

func TestStream_OrderlyFinishReportsSessionClosed(t *testing.T) {
	t.Parallel()

	s := live.NewStream(1)
	s.Finish(nil)
	s.Finish(errors.New("ignored"))

	for _, err := range s.ReceiveTurn(context.Background()) {
		if !errors.Is(err, live.ErrSessionClosed) {
			t.Errorf("err = %v, want ErrSessionClosed", err)
		}
	}
	if s.Push(context.Background(), &live.Event{}) {
		t.Error("Push after Finish should return false")
	}
}

func TestStream_ContextCancelled(t *testing.T) {
	t.Parallel()

	s := live.NewStream(1)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	for ev, err := range s.ReceiveTurn(ctx) {
		if ev != nil {
			t.Errorf("unexpected event %+v", ev)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	}
}

func TestStream_PushBlocksUntilCancelled(t *testing.T) {
	t.Parallel()

	s := live.NewStream(1)
	if !s.Push(context.Background(), &live.Event{}) {
		t.Fatal("first push should fit the buffer")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if s.Push(ctx, &live.Event{}) {
		t.Error("push into a full buffer should fail once ctx is done")
	}
}

func TestEvents_SpansTurns(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	sess.Emit(
		&live.Event{InputTranscript: "one"},
		&live.Event{TurnComplete: true},
		&live.Event{InputTranscript: "two"},
		&live.Event{TurnComplete: true},
		&live.Event{InputTranscript: "three"},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var inputs []string
	completes := 0
	for ev, err := range live.Events(ctx, sess) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.InputTranscript != "" {
			inputs = append(inputs, ev.InputTranscript)
		}
		if ev.TurnComplete {
			completes++
		}
		if ev.InputTranscript == "three" {
			break
		}
	}
	if want := []string{"one", "two", "three"}; !slices.Equal(inputs, want) {
		t.Errorf("inputs = %v, want %v", inputs, want)
	}
	if completes != 2 {
		t.Errorf("completes = %d, want 2", completes)
	}
}

func TestEvents_StopsOnSessionError(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	boom := errors.New("receive failed")
	sess.Emit(&live.Event{TurnComplete: true})
	sess.Fail(boom)

	var errs []error
	n := 0
	for ev, err := range live.Events(context.Background(), sess) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ev != nil {
			n++
		}
	}
	if n != 1 {
		t.Errorf("events = %d, want 1", n)
	}
	if len(errs) != 1 || !errors.Is(errs[0], boom) {
		t.Errorf("errs = %v, want [%v]", errs, boom)
	}
}

func TestConfig_ModalitiesDefaultToAudio(t *testing.T) {
	t.Parallel()

	if got := (live.Config{}).Modalities(); len(got) != 1 || got[0] != live.ModalityAudio {
		t.Errorf("Modalities() = %v, want [AUDIO]", got)
	}
	cfg := live.Config{ResponseModalities: []live.Modality{live.ModalityText}}
	if got := cfg.Modalities(); len(got) != 1 || got[0] != live.ModalityText {
		t.Errorf("Modalities() = %v, want [TEXT]", got)
	}
}

func TestMockSession_RecordsSentAudio(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	c := &mock.Connector{Session: sess}
	s, err := c.Connect(context.Background(), live.Config{Model: "m"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.SendAudio(context.Background(), live.Blob{Data: []byte{1, 2}, MIMEType: live.PCMInputMIME}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if got := sess.Sent(); len(got) != 1 || got[0].MIMEType != live.PCMInputMIME {
		t.Errorf("Sent() = %+v", got)
	}
	if calls := c.Calls(); len(calls) != 1 || calls[0].Cfg.Model != "m" {
		t.Errorf("Calls() = %+v", calls)
	}
	s.Close()
	s.Close()
	if sess.CloseCount() != 2 {
		t.Errorf("CloseCount = %d, want 2", sess.CloseCount())
	}
	if _, err := collectTurn(t, context.Background(), s); !errors.Is(err, live.ErrSessionClosed) {
		t.Errorf("ReceiveTurn after Close: err = %v, want ErrSessionClosed", err)
	}
}
