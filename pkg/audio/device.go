// Package audio defines the PCM frame types and the device abstractions used by
// the live voice relay.
//
// The two device abstractions are:
//
//   - [Source]: a blocking reader of fixed-size frames (microphone).
//   - [Sink]: a blocking writer of PCM chunks (speaker).
//
// Hardware-backed implementations live in the audio/device package; test
// doubles live in audio/mock.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrOverflow is returned by a [Source] when captured audio was discarded
	// because the consumer fell behind. It is transient: the next read
	// succeeds normally.
	ErrOverflow = errors.New("audio: input overflow")

	// ErrClosed is returned by device operations after Close.
	ErrClosed = errors.New("audio: device closed")
)

// Source produces fixed-size PCM frames from an input device.
//
// Read blocks until a full frame is available, ctx is cancelled, or the source
// is closed. Implementations must be safe for one reader concurrent with Close.
type Source interface {
	// Read returns the next frame. A returned [ErrOverflow] is transient.
	Read(ctx context.Context) (Frame, error)

	// Close releases the device. Calling Close more than once is safe.
	Close() error
}

// Sink writes PCM chunks to an output device in the order received.
//
// Write blocks until the device accepted the chunk. Implementations must be safe
// for one writer concurrent with Close.
type Sink interface {
	// Write plays pcm synchronously.
	Write(ctx context.Context, pcm []byte) error

	// Close releases the device. Calling Close more than once is safe.
	Close() error
}
