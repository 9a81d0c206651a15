package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/livevoice/internal/observe"
	"github.com/MrWong99/livevoice/pkg/live"
)

// Uplink drains the inbound queue into the remote session, one frame per
// message, in capture order.
type Uplink struct {
	queue   *InboundQueue
	sess    live.Session
	mime    string
	metrics *observe.Metrics
}

// NewUplink returns an uplink sender. An empty mime selects
// [live.PCMInputMIME].
func NewUplink(q *InboundQueue, sess live.Session, mime string, m *observe.Metrics) *Uplink {
	if mime == "" {
		mime = live.PCMInputMIME
	}
	return &Uplink{queue: q, sess: sess, mime: mime, metrics: m}
}

// Run sends frames until ctx is cancelled. A send failure is returned and
// ends the session.
func (u *Uplink) Run(ctx context.Context) error {
	for {
		frame, err := u.queue.Pop(ctx)
		if err != nil {
			return nil
		}
		start := time.Now()
		if err := u.sess.SendAudio(ctx, live.Blob{Data: frame.Data, MIMEType: u.mime}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("relay: uplink: %w", err)
		}
		u.metrics.SendDuration.Record(ctx, time.Since(start).Seconds())
		u.metrics.SentFrames.Add(ctx, 1)
	}
}
