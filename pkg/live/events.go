package live

import (
	"context"
	"iter"
)

// Events flattens the turns of sess into one lazy, unbounded sequence. After a
// turn ends it immediately asks for the next one. The sequence stops after the
// first error, which is yielded, or when the consumer stops ranging.
func Events(ctx context.Context, sess Session) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		for {
			for ev, err := range sess.ReceiveTurn(ctx) {
				if !yield(ev, err) || err != nil {
					return
				}
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}
