package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/livevoice/internal/observe"
	"github.com/MrWong99/livevoice/pkg/audio"
)

// Playback writes queued reply audio to the output device in order. Each
// write blocks until the device has accepted the chunk.
type Playback struct {
	sink    audio.Sink
	queue   *OutboundQueue
	metrics *observe.Metrics
}

// NewPlayback returns a playback loop draining q into sink.
func NewPlayback(sink audio.Sink, q *OutboundQueue, m *observe.Metrics) *Playback {
	return &Playback{sink: sink, queue: q, metrics: m}
}

// Run plays chunks until ctx is cancelled. A write failure is returned and
// ends the session.
func (p *Playback) Run(ctx context.Context) error {
	for {
		chunk, err := p.queue.Pop(ctx)
		if err != nil {
			return nil
		}
		start := time.Now()
		if err := p.sink.Write(ctx, chunk); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("relay: playback: %w", err)
		}
		p.metrics.PlaybackWriteDuration.Record(ctx, time.Since(start).Seconds())
		p.metrics.PlayedChunks.Add(ctx, 1)
	}
}
