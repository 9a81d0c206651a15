// Package device binds [audio.Source] and [audio.Sink] to the host's sound
// hardware. Capture goes through miniaudio (github.com/gen2brain/malgo) and
// playback through oto (github.com/ebitengine/oto/v3).
//
// Both bindings need cgo and a working audio backend at runtime; tests use
// the in-memory implementations in pkg/audio/mock instead.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/livevoice/pkg/audio"
)

// MicrophoneOption configures a [Microphone].
type MicrophoneOption func(*micConfig)

type micConfig struct {
	format       audio.Format
	frameSamples int
	periodMillis uint32
	bufferFrames int
}

// WithCaptureFormat overrides the capture sample rate and channel count.
// Default: [audio.CaptureFormat].
func WithCaptureFormat(f audio.Format) MicrophoneOption {
	return func(c *micConfig) { c.format = f }
}

// WithFrameSamples sets how many samples per channel one frame holds.
// Default: [audio.FrameSamples].
func WithFrameSamples(n int) MicrophoneOption {
	return func(c *micConfig) {
		if n > 0 {
			c.frameSamples = n
		}
	}
}

// WithBufferFrames sets how many frames the device callback may accumulate
// before the oldest audio is dropped. Default: 16.
func WithBufferFrames(n int) MicrophoneOption {
	return func(c *micConfig) {
		if n > 0 {
			c.bufferFrames = n
		}
	}
}

// Microphone is an [audio.Source] backed by the default capture device.
// The miniaudio callback fills a [audio.FrameBuffer]; Read hands out
// fixed-size frames from it.
type Microphone struct {
	format   audio.Format
	buf      *audio.FrameBuffer
	mctx     *malgo.AllocatedContext
	dev      *malgo.Device
	once     sync.Once

	posMu sync.Mutex
	pos   int // samples handed out so far
}

// OpenMicrophone initialises miniaudio, opens the default capture device in
// signed 16-bit little-endian format and starts it.
func OpenMicrophone(opts ...MicrophoneOption) (*Microphone, error) {
	cfg := micConfig{
		format:       audio.CaptureFormat,
		frameSamples: audio.FrameSamples,
		periodMillis: 20,
		bufferFrames: 16,
	}
	for _, o := range opts {
		o(&cfg)
	}

	frameBytes := cfg.format.FrameBytes(cfg.frameSamples)
	m := &Microphone{
		format: cfg.format,
		buf:    audio.NewFrameBuffer(frameBytes, frameBytes*cfg.bufferFrames),
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("miniaudio", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("device: init capture context: %w", err)
	}
	m.mctx = mctx

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = uint32(cfg.format.Channels)
	devCfg.SampleRate = uint32(cfg.format.SampleRate)
	devCfg.PeriodSizeInMilliseconds = cfg.periodMillis

	dev, err := malgo.InitDevice(mctx.Context, devCfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.buf.Write(input)
		},
	})
	if err != nil {
		m.freeContext()
		return nil, fmt.Errorf("device: init capture device: %w", err)
	}
	m.dev = dev

	if err := dev.Start(); err != nil {
		dev.Uninit()
		m.freeContext()
		return nil, fmt.Errorf("device: start capture: %w", err)
	}

	slog.Info("microphone opened",
		"sample_rate", cfg.format.SampleRate,
		"channels", cfg.format.Channels,
		"frame_bytes", frameBytes,
	)
	return m, nil
}

// Read blocks until one full frame of PCM is available. It returns
// [audio.ErrOverflow] once after the device outpaced the reader; callers
// treat that as transient.
func (m *Microphone) Read(ctx context.Context) (audio.Frame, error) {
	data, err := m.buf.ReadFrame(ctx)
	if err != nil {
		return audio.Frame{}, err
	}
	samples := len(data) / (audio.BytesPerSample * m.format.Channels)
	m.posMu.Lock()
	pos := m.pos
	m.pos += samples
	m.posMu.Unlock()
	return audio.Frame{
		Data:       data,
		SampleRate: m.format.SampleRate,
		Channels:   m.format.Channels,
		Timestamp:  m.format.Duration(pos),
	}, nil
}

// Close stops the device and releases miniaudio. Pending and future Reads
// return [audio.ErrClosed]. Safe to call more than once.
func (m *Microphone) Close() error {
	var err error
	m.once.Do(func() {
		m.buf.Close()
		if m.dev != nil {
			err = m.dev.Stop()
			m.dev.Uninit()
		}
		err = errors.Join(err, m.freeContext())
	})
	return err
}

func (m *Microphone) freeContext() error {
	if m.mctx == nil {
		return nil
	}
	err := m.mctx.Uninit()
	m.mctx.Free()
	m.mctx = nil
	return err
}

var _ audio.Source = (*Microphone)(nil)
