package relay

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/MrWong99/livevoice/internal/history"
	"github.com/MrWong99/livevoice/internal/observe"
	"github.com/MrWong99/livevoice/internal/turn"
	"github.com/MrWong99/livevoice/pkg/live"
)

// State is the receiver's position within a conversational turn.
type State int32

const (
	// StateIdle means no turn is open.
	StateIdle State = iota
	// StateInTurn means at least one event of the current turn arrived.
	StateInTurn
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInTurn:
		return "in_turn"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Notifier receives user-visible turn events from the downlink receiver.
// Calls are made from the receiver goroutine and must not block for long.
type Notifier interface {
	// Interrupted is called after queued reply audio was discarded.
	Interrupted()
	// Finalized is called for every entry a completed turn produced.
	Finalized(e history.Entry)
}

type nopNotifier struct{}

func (nopNotifier) Interrupted()            {}
func (nopNotifier) Finalized(history.Entry) {}

// Downlink consumes server events, routes reply audio to the outbound queue
// and closes turns into history entries.
type Downlink struct {
	sess     live.Session
	out      *OutboundQueue
	rec      *turn.Recorder
	notifier Notifier
	metrics  *observe.Metrics

	state   atomic.Int32
	turnCtx context.Context
	span    *observe.TurnSpan
}

// NewDownlink returns a receiver for sess. notifier may be nil.
func NewDownlink(sess live.Session, out *OutboundQueue, rec *turn.Recorder, notifier Notifier, m *observe.Metrics) *Downlink {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Downlink{sess: sess, out: out, rec: rec, notifier: notifier, metrics: m}
}

// State returns the current turn state.
func (d *Downlink) State() State { return State(d.state.Load()) }

// Run handles events until ctx is cancelled or the stream fails. A receive
// failure is returned and ends the session.
func (d *Downlink) Run(ctx context.Context) error {
	defer d.endSpan(nil)
	for ev, err := range live.Events(ctx, d.sess) {
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.endSpan(err)
			return fmt.Errorf("relay: downlink: %w", err)
		}
		d.handle(ctx, ev)
	}
	return nil
}

func (d *Downlink) handle(ctx context.Context, ev *live.Event) {
	if d.State() == StateIdle {
		d.state.Store(int32(StateInTurn))
		d.turnCtx, d.span = observe.StartTurn(ctx)
	}

	if ev.InputTranscript != "" {
		d.rec.AddUser(ev.InputTranscript)
	}
	for _, chunk := range ev.Audio {
		d.out.Push(chunk)
		d.metrics.ReceivedChunks.Add(ctx, 1)
	}
	if ev.ModelText != "" {
		d.rec.AddAgent(ev.ModelText)
	}
	if ev.OutputTranscript != "" {
		d.rec.AddAgent(ev.OutputTranscript)
	}
	if ev.TurnComplete {
		d.finalize()
	}
	if ev.Interrupted {
		d.interrupt(ctx)
	}
}

func (d *Downlink) finalize() {
	ctx := d.turnCtx
	entries, err := d.rec.Finalize(ctx)
	for _, e := range entries {
		d.metrics.RecordHistoryEntry(ctx, string(e.Role))
		d.notifier.Finalized(e)
	}
	if err != nil {
		d.metrics.HistorySaveErrors.Add(ctx, 1)
		observe.Logger(ctx).Warn("relay: history save failed", "err", err)
	}

	d.metrics.Turns.Add(ctx, 1)
	d.metrics.TurnDuration.Record(ctx, d.span.End(len(entries), nil).Seconds())
	d.span, d.turnCtx = nil, nil
	d.state.Store(int32(StateIdle))
}

func (d *Downlink) interrupt(ctx context.Context) {
	n := d.out.Clear()
	d.rec.Interrupt()
	d.metrics.Interruptions.Add(ctx, 1)
	d.metrics.DiscardedChunks.Add(ctx, int64(n))
	d.span.Interrupted(n)
	observe.Logger(ctx).Debug("relay: interrupted", "discarded_chunks", n)
	// The turn closes here; pending user text carries into the next one.
	d.endSpan(nil)
	d.state.Store(int32(StateIdle))
	d.notifier.Interrupted()
}

// endSpan closes a turn left open when the stream ends.
func (d *Downlink) endSpan(err error) {
	d.span.End(0, err)
	d.span, d.turnCtx = nil, nil
}
