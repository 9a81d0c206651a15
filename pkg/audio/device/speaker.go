package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/livevoice/pkg/audio"
)

// oto permits a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
	otoFmt  audio.Format
)

func sharedContext(f audio.Format, bufferBytes int) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   f.SampleRate,
			ChannelCount: f.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   f.Duration(bufferBytes / (audio.BytesPerSample * f.Channels)),
		})
		if err != nil {
			otoErr = fmt.Errorf("device: init playback context: %w", err)
			return
		}
		<-ready
		otoCtx, otoFmt = ctx, f
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoFmt != f {
		return nil, fmt.Errorf("device: playback context already open at %d Hz/%d ch", otoFmt.SampleRate, otoFmt.Channels)
	}
	return otoCtx, nil
}

// Speaker is an [audio.Sink] that streams PCM to the default output device.
//
// Write hands data to the oto player through a pipe, so it returns only once
// the player has pulled the whole chunk. Chunks therefore play back in the
// order they were written.
type Speaker struct {
	player *oto.Player
	pw     *io.PipeWriter
	pr     *io.PipeReader

	mu     sync.Mutex
	closed bool
}

// OpenSpeaker opens the output device at format f. bufferBytes bounds the
// player's internal buffer; 0 selects 100 ms.
func OpenSpeaker(f audio.Format, bufferBytes int) (*Speaker, error) {
	if bufferBytes <= 0 {
		bufferBytes = f.FrameBytes(f.SampleRate / 10)
	}
	ctx, err := sharedContext(f, bufferBytes)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	player := ctx.NewPlayer(pr)
	player.SetBufferSize(bufferBytes)
	player.Play()

	slog.Info("speaker opened", "sample_rate", f.SampleRate, "channels", f.Channels)
	return &Speaker{player: player, pw: pw, pr: pr}, nil
}

// Write blocks until pcm has been consumed by the player or ctx is done.
// Cancelling ctx closes the speaker.
func (s *Speaker) Write(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return audio.ErrClosed
	}
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		s.pw.CloseWithError(ctx.Err())
	})
	defer stop()

	if _, err := s.pw.Write(pcm); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, io.ErrClosedPipe) {
			return audio.ErrClosed
		}
		return fmt.Errorf("device: write playback: %w", err)
	}
	return nil
}

// Close stops playback and releases the player. Safe to call more than once.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.pw.Close()
	s.pr.Close()
	return s.player.Close()
}

var _ audio.Sink = (*Speaker)(nil)
