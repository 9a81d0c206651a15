package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/livevoice/internal/observe"
	"github.com/MrWong99/livevoice/pkg/audio"
)

// Gate decides whether captured audio is forwarded. A nil Gate forwards
// everything.
type Gate interface {
	Open() bool
}

// Capture reads fixed-size frames from the input device and queues the ones
// captured while the gate is open.
type Capture struct {
	src     audio.Source
	gate    Gate
	queue   *InboundQueue
	metrics *observe.Metrics
}

// NewCapture returns a capture loop feeding q from src.
func NewCapture(src audio.Source, gate Gate, q *InboundQueue, m *observe.Metrics) *Capture {
	return &Capture{src: src, gate: gate, queue: q, metrics: m}
}

// Run loops until ctx is cancelled. Transient read errors are logged at
// debug level and skipped; a closed source ends the session.
func (c *Capture) Run(ctx context.Context) error {
	for {
		frame, err := c.src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, audio.ErrClosed) {
				return fmt.Errorf("relay: capture: %w", err)
			}
			c.metrics.CaptureErrors.Add(ctx, 1)
			slog.Debug("relay: capture read failed", "err", err)
			continue
		}

		open := c.gate == nil || c.gate.Open()
		c.metrics.RecordCapturedFrame(ctx, open)
		if !open {
			continue
		}
		if err := c.queue.Push(ctx, frame); err != nil {
			return nil
		}
	}
}
