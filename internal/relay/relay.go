// Package relay moves audio between the local devices and a remote live
// session.
//
// Four workers run concurrently under one [Relay]:
//
//	Capture  -> InboundQueue  -> Uplink   -> session
//	session  -> Downlink      -> OutboundQueue -> Playback
//
// The first worker to fail cancels the others and its error is returned from
// [Relay.Run]. Cancelling the context passed to Run stops every worker
// without an error.
package relay

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/livevoice/internal/observe"
	"github.com/MrWong99/livevoice/internal/turn"
	"github.com/MrWong99/livevoice/pkg/audio"
	"github.com/MrWong99/livevoice/pkg/live"
)

// Config wires a Relay. Source, Sink, Session and Recorder are required.
type Config struct {
	Source   audio.Source
	Sink     audio.Sink
	Session  live.Session
	Recorder *turn.Recorder

	// Gate controls which captured frames are uploaded. Nil forwards all.
	Gate Gate

	// Notifier receives interruption and transcript events. Optional.
	Notifier Notifier

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// InboundCapacity defaults to [DefaultInboundCapacity].
	InboundCapacity int

	// MIMEType defaults to [live.PCMInputMIME].
	MIMEType string
}

// Relay supervises the four workers of one session.
type Relay struct {
	in  *InboundQueue
	out *OutboundQueue

	capture  *Capture
	uplink   *Uplink
	downlink *Downlink
	playback *Playback
}

// New validates cfg and builds the workers.
func New(cfg Config) (*Relay, error) {
	var errs []error
	if cfg.Source == nil {
		errs = append(errs, errors.New("relay: source is required"))
	}
	if cfg.Sink == nil {
		errs = append(errs, errors.New("relay: sink is required"))
	}
	if cfg.Session == nil {
		errs = append(errs, errors.New("relay: session is required"))
	}
	if cfg.Recorder == nil {
		errs = append(errs, errors.New("relay: recorder is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}

	in := NewInboundQueue(cfg.InboundCapacity)
	out := NewOutboundQueue()
	return &Relay{
		in:       in,
		out:      out,
		capture:  NewCapture(cfg.Source, cfg.Gate, in, m),
		uplink:   NewUplink(in, cfg.Session, cfg.MIMEType, m),
		downlink: NewDownlink(cfg.Session, out, cfg.Recorder, cfg.Notifier, m),
		playback: NewPlayback(cfg.Sink, out, m),
	}, nil
}

// Run starts all workers and blocks until they have stopped.
func (r *Relay) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.capture.Run(gctx) })
	g.Go(func() error { return r.uplink.Run(gctx) })
	g.Go(func() error { return r.downlink.Run(gctx) })
	g.Go(func() error { return r.playback.Run(gctx) })

	err := g.Wait()
	if err != nil {
		slog.Error("relay: session failed", "err", err)
	}
	return err
}

// State returns the downlink turn state.
func (r *Relay) State() State { return r.downlink.State() }

// Pending returns the number of queued inbound frames and outbound chunks.
func (r *Relay) Pending() (inbound, outbound int) {
	return r.in.Len(), r.out.Len()
}
