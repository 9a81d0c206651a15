// Package genai implements live.Connector on top of the official Google Gen AI
// SDK (google.golang.org/genai). It is an alternative to the hand-rolled
// websocket client in the sibling gemini package and is selected with the
// "genai" backend name.
package genai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	sdk "google.golang.org/genai"

	"github.com/MrWong99/livevoice/pkg/live"
)

var _ live.Connector = (*Provider)(nil)
var _ live.Session = (*session)(nil)

const (
	defaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	eventBuffer  = 64
)

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the fallback model used when live.Config.Model is empty.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL points the SDK at a different endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithAPIVersion overrides the API version (default "v1beta").
func WithAPIVersion(v string) Option {
	return func(p *Provider) { p.apiVersion = v }
}

// Provider opens Gemini Live sessions through the Gen AI SDK.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	apiVersion string
}

// New returns a Provider for the Gemini API backend.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, model: defaultModel}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect creates an SDK client and opens a live session.
func (p *Provider) Connect(ctx context.Context, cfg live.Config) (live.Session, error) {
	client, err := sdk.NewClient(ctx, &sdk.ClientConfig{
		APIKey:  p.apiKey,
		Backend: sdk.BackendGeminiAPI,
		HTTPOptions: sdk.HTTPOptions{
			BaseURL:    p.baseURL,
			APIVersion: p.apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("genai: new client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = p.model
	}
	conn, err := client.Live.Connect(ctx, model, connectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("genai: connect: %w", err)
	}

	s := &session{conn: conn, stream: live.NewStream(eventBuffer)}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.receiveLoop()
	return s, nil
}

// connectConfig translates cfg into the SDK's session setup.
func connectConfig(cfg live.Config) *sdk.LiveConnectConfig {
	out := &sdk.LiveConnectConfig{}
	for _, m := range cfg.Modalities() {
		out.ResponseModalities = append(out.ResponseModalities, sdk.Modality(m))
	}
	if cfg.SystemInstruction != "" {
		out.SystemInstruction = &sdk.Content{
			Parts: []*sdk.Part{{Text: cfg.SystemInstruction}},
		}
	}
	if cfg.Voice != "" {
		out.SpeechConfig = &sdk.SpeechConfig{
			VoiceConfig: &sdk.VoiceConfig{
				PrebuiltVoiceConfig: &sdk.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.InputTranscription {
		out.InputAudioTranscription = &sdk.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		out.OutputAudioTranscription = &sdk.AudioTranscriptionConfig{}
	}
	return out
}

// toEvent flattens a server message. It returns nil for messages that carry
// no server content.
func toEvent(msg *sdk.LiveServerMessage) *live.Event {
	sc := msg.ServerContent
	if sc == nil {
		return nil
	}
	ev := &live.Event{
		TurnComplete: sc.TurnComplete,
		Interrupted:  sc.Interrupted,
	}
	if sc.InputTranscription != nil {
		ev.InputTranscript = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		ev.OutputTranscript = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p == nil {
				continue
			}
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				ev.Audio = append(ev.Audio, p.InlineData.Data)
			}
			ev.ModelText += p.Text
		}
	}
	return ev
}

type session struct {
	conn   *sdk.Session
	stream *live.Stream

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// receiveLoop pumps the SDK's blocking Receive into the stream. Receive has
// no context; Close unblocks it by closing the connection.
func (s *session) receiveLoop() {
	for {
		msg, err := s.conn.Receive()
		if err != nil {
			if s.isClosed() {
				s.stream.Finish(nil)
			} else {
				s.stream.Finish(fmt.Errorf("genai: receive: %w", err))
			}
			return
		}
		if msg.GoAway != nil {
			slog.Warn("genai: server is closing the session soon", "time_left", msg.GoAway.TimeLeft)
		}
		ev := toEvent(msg)
		if ev == nil || ev.Empty() {
			continue
		}
		if !s.stream.Push(s.ctx, ev) {
			return
		}
	}
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SendAudio uploads one PCM chunk as realtime input.
func (s *session) SendAudio(ctx context.Context, b live.Blob) error {
	if s.isClosed() {
		return live.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	mime := b.MIMEType
	if mime == "" {
		mime = live.PCMInputMIME
	}
	err := s.conn.SendRealtimeInput(sdk.LiveRealtimeInput{
		Audio: &sdk.Blob{Data: b.Data, MIMEType: mime},
	})
	if err != nil {
		return fmt.Errorf("genai: send audio: %w", err)
	}
	return nil
}

func (s *session) ReceiveTurn(ctx context.Context) iter.Seq2[*live.Event, error] {
	return s.stream.ReceiveTurn(ctx)
}

// Close is idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.stream.Finish(nil)
	if err := s.conn.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("genai: close: %w", err)
	}
	return nil
}
