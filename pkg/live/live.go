// Package live defines the contract for real-time speech sessions with a
// remote model such as the Gemini Live API.
//
// A [Session] accepts a continuous stream of PCM audio through SendAudio and
// delivers the model's reply turn by turn through ReceiveTurn. Each turn is a
// finite sequence of [Event] values that ends after the event carrying
// TurnComplete. [Events] flattens successive turns into a single sequence that
// only ends on cancellation or failure.
//
// Implementations live in sub-packages (gemini, genai) and are selected by name
// through the config registry. All implementations must be safe for concurrent
// use: SendAudio and ReceiveTurn are typically driven from different
// goroutines.
package live

import (
	"context"
	"errors"
	"iter"
)

// PCMInputMIME is the MIME type of the 16 kHz mono PCM the relay uploads.
const PCMInputMIME = "audio/pcm;rate=16000"

// ErrSessionClosed is returned when the session ended without a more specific
// cause, for example after Close or an orderly remote shutdown.
var ErrSessionClosed = errors.New("live: session closed")

// Modality names a kind of model output.
type Modality string

const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// Blob is a chunk of media sent to the model.
type Blob struct {
	Data     []byte
	MIMEType string
}

// Config is the session configuration sent during setup.
type Config struct {
	// Model is the model name without the "models/" prefix.
	Model string

	// SystemInstruction is the system prompt. Empty means none.
	SystemInstruction string

	// ResponseModalities lists the requested output kinds. Empty defaults to
	// audio only.
	ResponseModalities []Modality

	// InputTranscription asks the server to transcribe the user's speech.
	InputTranscription bool

	// OutputTranscription asks the server to transcribe its own speech.
	OutputTranscription bool

	// Voice is a prebuilt voice name such as "Puck". Empty keeps the server
	// default.
	Voice string
}

// Modalities returns ResponseModalities, or audio only when unset.
func (c Config) Modalities() []Modality {
	if len(c.ResponseModalities) == 0 {
		return []Modality{ModalityAudio}
	}
	return c.ResponseModalities
}

// Event is one server message within a turn. Several fields may be set at
// once; consumers handle them in declaration order.
type Event struct {
	// InputTranscript is a fragment of the recognised user speech.
	InputTranscript string

	// Audio holds inline PCM chunks (24 kHz mono s16le) in arrival order.
	Audio [][]byte

	// ModelText is text emitted as part of the model turn.
	ModelText string

	// OutputTranscript is a fragment of the transcript of the model's speech.
	OutputTranscript string

	// TurnComplete marks the end of the model's turn.
	TurnComplete bool

	// Interrupted reports that the user barged in and the model stopped
	// generating the current reply.
	Interrupted bool
}

// Empty reports whether the event carries nothing the relay acts on.
func (e *Event) Empty() bool {
	return e.InputTranscript == "" && len(e.Audio) == 0 && e.ModelText == "" &&
		e.OutputTranscript == "" && !e.TurnComplete && !e.Interrupted
}

// Session is an open bidirectional session with a real-time model.
type Session interface {
	// SendAudio uploads one chunk of input audio. Any error is fatal for the
	// session.
	SendAudio(ctx context.Context, blob Blob) error

	// ReceiveTurn returns the events of the next turn. The sequence ends
	// after the event with TurnComplete set, or after yielding a non-nil error
	// when ctx is done or the session failed.
	ReceiveTurn(ctx context.Context) iter.Seq2[*Event, error]

	// Close terminates the session. It is idempotent.
	Close() error
}

// Connector opens sessions.
type Connector interface {
	Connect(ctx context.Context, cfg Config) (Session, error)
}

// ConnectorFunc adapts a function to [Connector].
type ConnectorFunc func(ctx context.Context, cfg Config) (Session, error)

// Connect calls f(ctx, cfg).
func (f ConnectorFunc) Connect(ctx context.Context, cfg Config) (Session, error) {
	return f(ctx, cfg)
}
