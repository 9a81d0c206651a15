// Package app wires the livevoice subsystems into a running session.
//
// The App struct owns the full lifecycle: New loads history and opens the
// devices, Run connects the remote session and relays audio until the
// context is cancelled or a worker fails, and Shutdown releases everything
// New acquired.
//
// For testing, inject doubles via functional options (WithConnector,
// WithSource, WithSink, WithStore, ...). When an option is not provided,
// New creates the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/livevoice/internal/config"
	"github.com/MrWong99/livevoice/internal/health"
	"github.com/MrWong99/livevoice/internal/history"
	"github.com/MrWong99/livevoice/internal/observe"
	"github.com/MrWong99/livevoice/internal/ptt"
	"github.com/MrWong99/livevoice/internal/relay"
	"github.com/MrWong99/livevoice/internal/turn"
	"github.com/MrWong99/livevoice/internal/ui"
	"github.com/MrWong99/livevoice/pkg/audio"
	"github.com/MrWong99/livevoice/pkg/audio/device"
	"github.com/MrWong99/livevoice/pkg/live"
)

// App owns all subsystem lifetimes for one conversation session.
type App struct {
	cfg *config.Config

	registry  *config.Registry
	connector live.Connector
	source    audio.Source
	sink      audio.Sink
	store     history.Store
	postgres  *history.PostgresStore
	reporter  ui.Reporter
	gate      *ptt.Gate
	metrics   *observe.Metrics

	log      *history.Log
	recorder *turn.Recorder

	connected atomic.Bool

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry sets the registry used to build the connector from
// cfg.Live.Backend.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithConnector injects a connector instead of creating one from the registry.
func WithConnector(c live.Connector) Option {
	return func(a *App) { a.connector = c }
}

// WithSource injects the capture source instead of opening the microphone.
func WithSource(s audio.Source) Option {
	return func(a *App) { a.source = s }
}

// WithSink injects the playback sink instead of opening the speaker.
func WithSink(s audio.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithStore injects the history store instead of creating one from config.
func WithStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithReporter sets where status and transcript lines go. Default: plain
// lines on stdout.
func WithReporter(r ui.Reporter) Option {
	return func(a *App) { a.reporter = r }
}

// WithGate sets the push-to-talk gate. Default: permanently open.
func WithGate(g *ptt.Gate) Option {
	return func(a *App) { a.gate = g }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. cfg must already
// have defaults applied and be validated.
//
// New performs all initialisation synchronously: history store creation and
// load, connector construction and device opening. Anything acquired is
// released by Shutdown, also when New itself fails.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.reporter == nil {
		a.reporter = ui.NewPlain(os.Stdout)
	}
	if a.gate == nil {
		a.gate = ptt.NewGate(true)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initHistory(ctx); err != nil {
		a.Shutdown(ctx)
		return nil, fmt.Errorf("app: init history: %w", err)
	}
	if err := a.initConnector(); err != nil {
		a.Shutdown(ctx)
		return nil, fmt.Errorf("app: init connector: %w", err)
	}
	if err := a.initDevices(); err != nil {
		a.Shutdown(ctx)
		return nil, fmt.Errorf("app: init devices: %w", err)
	}
	return a, nil
}

func (a *App) initHistory(ctx context.Context) error {
	if a.store == nil {
		file := history.NewFileStore(a.cfg.History.Path)
		a.store = file
		if dsn := a.cfg.History.PostgresDSN; dsn != "" {
			pg, err := history.NewPostgresStore(ctx, dsn, a.cfg.History.ConversationID)
			if err != nil {
				return err
			}
			a.postgres = pg
			a.closers = append(a.closers, func() error { pg.Close(); return nil })
			a.store = &history.Mirror{Primary: file, Mirrors: []history.Store{pg}}
			slog.Info("history mirrored to postgres", "conversation_id", pg.ConversationID())
		}
	}

	entries, err := a.store.Load(ctx)
	if err != nil {
		slog.Warn("failed to load history, starting empty", "err", err)
		entries = nil
	}
	a.log = history.NewLog(entries)
	a.recorder = turn.NewRecorder(a.log, a.store)
	slog.Info("history loaded", "entries", a.log.Len())
	return nil
}

func (a *App) initConnector() error {
	if a.connector != nil {
		return nil
	}
	if a.registry == nil {
		return errors.New("no connector or registry configured")
	}
	c, err := a.registry.CreateConnector(a.cfg.Live)
	if err != nil {
		return err
	}
	a.connector = c
	return nil
}

func (a *App) initDevices() error {
	if a.source == nil {
		mic, err := device.OpenMicrophone(
			device.WithCaptureFormat(audio.Format{SampleRate: a.cfg.Audio.CaptureRate, Channels: 1}),
			device.WithFrameSamples(a.cfg.Audio.FrameSamples),
		)
		if err != nil {
			return err
		}
		a.source = mic
		a.closers = append(a.closers, mic.Close)
	}
	if a.sink == nil {
		spk, err := device.OpenSpeaker(audio.Format{SampleRate: a.cfg.Audio.PlaybackRate, Channels: 1}, 0)
		if err != nil {
			return err
		}
		a.sink = spk
		a.closers = append(a.closers, spk.Close)
	}
	return nil
}

// History returns the conversation log.
func (a *App) History() *history.Log { return a.log }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run connects the remote session and relays audio until ctx is cancelled
// or a worker fails. The history is saved once more before Run returns,
// whatever the outcome. Cancellation is not an error.
func (a *App) Run(ctx context.Context) error {
	err := a.run(ctx)

	if saveErr := a.recorder.Save(context.WithoutCancel(ctx)); saveErr != nil {
		a.metrics.HistorySaveErrors.Add(ctx, 1)
		slog.Warn("final history save failed", "err", saveErr)
	} else {
		slog.Info("history saved", "entries", a.log.Len())
	}

	if err != nil {
		a.reporter.Failed(err)
	}
	return err
}

func (a *App) run(ctx context.Context) error {
	a.reporter.Connecting(a.cfg.Live.Model)

	instruction := history.BuildInstruction(a.cfg.Live.SystemInstruction, a.log.Entries(), a.cfg.Live.ContextEntries)
	sess, err := a.connector.Connect(ctx, live.Config{
		Model:               a.cfg.Live.Model,
		SystemInstruction:   instruction,
		ResponseModalities:  []live.Modality{live.ModalityAudio},
		InputTranscription:  true,
		OutputTranscription: true,
		Voice:               a.cfg.Live.Voice,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("app: connect: %w", err)
	}
	defer func() {
		a.connected.Store(false)
		a.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
		if err := sess.Close(); err != nil {
			slog.Warn("session close error", "err", err)
		}
	}()
	a.connected.Store(true)
	a.metrics.ActiveSessions.Add(ctx, 1)
	a.reporter.Connected()
	slog.Info("session connected", "model", a.cfg.Live.Model, "history_entries", a.log.Len())

	r, err := relay.New(relay.Config{
		Source:          a.source,
		Sink:            a.sink,
		Session:         sess,
		Recorder:        a.recorder,
		Gate:            a.gate,
		Notifier:        a.reporter,
		Metrics:         a.metrics,
		InboundCapacity: a.cfg.Audio.InboundQueue,
		MIMEType:        fmt.Sprintf("audio/pcm;rate=%d", a.cfg.Audio.CaptureRate),
	})
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return r.Run(ctx)
}

// ─── Health ──────────────────────────────────────────────────────────────────

// Checkers returns readiness checks for the ops server: the remote session
// is connected and the history can be written.
func (a *App) Checkers() []health.Checker {
	return []health.Checker{
		{Name: "session", Check: func(context.Context) error {
			if !a.connected.Load() {
				return errors.New("not connected")
			}
			return nil
		}},
		{Name: "history", Check: a.checkHistory},
	}
}

func (a *App) checkHistory(ctx context.Context) error {
	if a.postgres != nil {
		if err := a.postgres.Ping(ctx); err != nil {
			return err
		}
	}
	dir := filepath.Dir(a.cfg.History.Path)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	f, err := os.CreateTemp(dir, ".livevoice-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases the devices and stores New opened. Injected
// dependencies are left to their owners. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
