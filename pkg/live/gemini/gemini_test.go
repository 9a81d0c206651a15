package gemini_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/livevoice/pkg/live"
	"github.com/MrWong99/livevoice/pkg/live/gemini"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startGeminiServer launches a test WebSocket server. The handler function
// receives the accepted *websocket.Conn. The server is automatically closed
// when the test finishes.
func startGeminiServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one WebSocket text frame and decodes it into v.
func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("readJSON: %v", err)
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Errorf("readJSON unmarshal: %v", err)
	}
}

// writeJSON marshals v and sends it as a text frame.
func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// writeRaw sends data verbatim as a text frame.
func writeRaw(t *testing.T, conn *websocket.Conn, data string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(data)); err != nil {
		t.Logf("writeRaw: %v", err)
	}
}

// acceptSetup consumes the client's setup message and acknowledges it.
func acceptSetup(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	var raw map[string]any
	readJSON(t, conn, &raw)
	writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
}

// waitClosed blocks until the client goes away.
func waitClosed(conn *websocket.Conn) {
	<-conn.CloseRead(context.Background()).Done()
}

func newProvider(srv *httptest.Server) *gemini.Provider {
	return gemini.New("test-api-key", gemini.WithBaseURL(wsURL(srv)), gemini.WithKeepalive(0))
}

func connect(t *testing.T, p *gemini.Provider, cfg live.Config) live.Session {
	t.Helper()
	sess, err := p.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func receiveTurn(t *testing.T, sess live.Session) ([]*live.Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var evs []*live.Event
	for ev, err := range sess.ReceiveTurn(ctx) {
		if err != nil {
			return evs, err
		}
		evs = append(evs, ev)
	}
	return evs, nil
}

func audioPart(pcm []byte) map[string]any {
	return map[string]any{
		"inlineData": map[string]any{
			"mimeType": "audio/pcm;rate=24000",
			"data":     base64.StdEncoding.EncodeToString(pcm),
		},
	}
}

// ── Setup ─────────────────────────────────────────────────────────────────────

func TestConnect_SendsSetup(t *testing.T) {
	t.Parallel()

	type setupMsg struct {
		Setup struct {
			Model            string `json:"model"`
			GenerationConfig struct {
				ResponseModalities []string `json:"responseModalities"`
				SpeechConfig       *struct {
					VoiceConfig struct {
						PrebuiltVoiceConfig struct {
							VoiceName string `json:"voiceName"`
						} `json:"prebuiltVoiceConfig"`
					} `json:"voiceConfig"`
				} `json:"speechConfig"`
			} `json:"generationConfig"`
			SystemInstruction *struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"systemInstruction"`
			InputAudioTranscription  *struct{} `json:"inputAudioTranscription"`
			OutputAudioTranscription *struct{} `json:"outputAudioTranscription"`
		} `json:"setup"`
	}

	received := make(chan setupMsg, 1)
	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg setupMsg
		readJSON(t, conn, &msg)
		received <- msg
		waitClosed(conn)
	})

	connect(t, newProvider(srv), live.Config{
		Model:               "custom-model",
		SystemInstruction:   "You are helpful.",
		InputTranscription:  true,
		OutputTranscription: true,
		Voice:               "Puck",
	})

	select {
	case msg := <-received:
		s := msg.Setup
		if s.Model != "models/custom-model" {
			t.Errorf("model = %q, want %q", s.Model, "models/custom-model")
		}
		if got := s.GenerationConfig.ResponseModalities; len(got) != 1 || got[0] != "AUDIO" {
			t.Errorf("responseModalities = %v, want [AUDIO]", got)
		}
		if s.SystemInstruction == nil || len(s.SystemInstruction.Parts) == 0 || s.SystemInstruction.Parts[0].Text != "You are helpful." {
			t.Errorf("unexpected system instruction: %+v", s.SystemInstruction)
		}
		if s.GenerationConfig.SpeechConfig == nil || s.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Puck" {
			t.Errorf("unexpected speech config: %+v", s.GenerationConfig.SpeechConfig)
		}
		if s.InputAudioTranscription == nil || s.OutputAudioTranscription == nil {
			t.Error("transcription configs should be present")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for setup message")
	}
}

func TestConnect_OmitsOptionalSetupFields(t *testing.T) {
	t.Parallel()

	received := make(chan map[string]any, 1)
	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg struct {
			Setup map[string]any `json:"setup"`
		}
		readJSON(t, conn, &msg)
		received <- msg.Setup
		waitClosed(conn)
	})

	connect(t, gemini.New("k", gemini.WithBaseURL(wsURL(srv)), gemini.WithModel("fallback"), gemini.WithKeepalive(0)), live.Config{})

	select {
	case setup := <-received:
		if setup["model"] != "models/fallback" {
			t.Errorf("model = %v, want models/fallback", setup["model"])
		}
		for _, key := range []string{"systemInstruction", "inputAudioTranscription", "outputAudioTranscription"} {
			if _, ok := setup[key]; ok {
				t.Errorf("setup should not contain %q", key)
			}
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for setup message")
	}
}

func TestConnect_IncludesAPIKeyInURL(t *testing.T) {
	t.Parallel()

	query := make(chan string, 1)
	srv := startGeminiServer(t, func(conn *websocket.Conn, r *http.Request) {
		query <- r.URL.RawQuery
		acceptSetup(t, conn)
		waitClosed(conn)
	})

	connect(t, gemini.New("secret-key", gemini.WithBaseURL(wsURL(srv)), gemini.WithKeepalive(0)), live.Config{})

	select {
	case q := <-query:
		if !strings.Contains(q, "key=secret-key") {
			t.Errorf("URL query %q should contain key=secret-key", q)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
}

func TestConnect_DialFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	_, err := newProvider(srv).Connect(context.Background(), live.Config{})
	if err == nil {
		t.Fatal("expected dial error")
	}
	if !strings.HasPrefix(err.Error(), "gemini: dial") {
		t.Errorf("err = %v, want gemini: dial prefix", err)
	}
}

// ── SendAudio ─────────────────────────────────────────────────────────────────

func TestSendAudio_EncodesAndSends(t *testing.T) {
	t.Parallel()

	type realtimeInput struct {
		RealtimeInput struct {
			Audio *struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"audio"`
		} `json:"realtimeInput"`
	}

	audioMsg := make(chan realtimeInput, 1)
	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSetup(t, conn)
		var msg realtimeInput
		readJSON(t, conn, &msg)
		audioMsg <- msg
		waitClosed(conn)
	})

	sess := connect(t, newProvider(srv), live.Config{})

	wantPCM := []byte{0x01, 0x02, 0x03, 0x04}
	if err := sess.SendAudio(context.Background(), live.Blob{Data: wantPCM, MIMEType: live.PCMInputMIME}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case msg := <-audioMsg:
		a := msg.RealtimeInput.Audio
		if a == nil {
			t.Fatal("no audio blob in realtimeInput")
		}
		if a.MIMEType != "audio/pcm;rate=16000" {
			t.Errorf("mimeType = %q, want audio/pcm;rate=16000", a.MIMEType)
		}
		got, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			t.Fatalf("base64 decode: %v", err)
		}
		if string(got) != string(wantPCM) {
			t.Errorf("decoded audio = %v, want %v", got, wantPCM)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for audio message")
	}
}

func TestSendAudio_AfterClose_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSetup(t, conn)
		waitClosed(conn)
	})

	sess := connect(t, newProvider(srv), live.Config{})
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	err := sess.SendAudio(context.Background(), live.Blob{Data: []byte{1, 2, 3}})
	if !errors.Is(err, live.ErrSessionClosed) {
		t.Fatalf("SendAudio after Close: err = %v, want ErrSessionClosed", err)
	}
}

// ── ReceiveTurn ───────────────────────────────────────────────────────────────

func TestReceiveTurn_DecodesServerContent(t *testing.T) {
	t.Parallel()

	pcmA := []byte{0xAA, 0xBB}
	pcmB := []byte{0xCC, 0xDD}

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSetup(t, conn)
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"inputTranscription": map[string]any{"text": "hello"},
			},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{audioPart(pcmA), {"text": "thinking"}, audioPart(pcmB)},
				},
				"outputTranscription": map[string]any{"text": "Hi there"},
			},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{"turnComplete": true},
		})
		waitClosed(conn)
	})

	sess := connect(t, newProvider(srv), live.Config{})
	evs, err := receiveTurn(t, sess)
	if err != nil {
		t.Fatalf("ReceiveTurn: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("got %d events, want 3", len(evs))
	}
	if evs[0].InputTranscript != "hello" {
		t.Errorf("InputTranscript = %q, want hello", evs[0].InputTranscript)
	}
	if len(evs[1].Audio) != 2 || string(evs[1].Audio[0]) != string(pcmA) || string(evs[1].Audio[1]) != string(pcmB) {
		t.Errorf("Audio = %v, want [%v %v]", evs[1].Audio, pcmA, pcmB)
	}
	if evs[1].ModelText != "thinking" {
		t.Errorf("ModelText = %q, want thinking", evs[1].ModelText)
	}
	if evs[1].OutputTranscript != "Hi there" {
		t.Errorf("OutputTranscript = %q, want %q", evs[1].OutputTranscript, "Hi there")
	}
	if !evs[2].TurnComplete {
		t.Error("last event should be TurnComplete")
	}
}

func TestReceiveTurn_SkipsMalformedAndIrrelevantFrames(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSetup(t, conn)
		writeRaw(t, conn, "{not json")
		writeJSON(t, conn, map[string]any{"usageMetadata": map[string]any{"totalTokenCount": 5}})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{{"inlineData": map[string]any{"mimeType": "audio/pcm", "data": "!!!"}}},
				},
			},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{"interrupted": true},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{"turnComplete": true},
		})
		waitClosed(conn)
	})

	sess := connect(t, newProvider(srv), live.Config{})
	evs, err := receiveTurn(t, sess)
	if err != nil {
		t.Fatalf("ReceiveTurn: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(evs), evs)
	}
	if !evs[0].Interrupted {
		t.Error("first event should be Interrupted")
	}
	if !evs[1].TurnComplete {
		t.Error("second event should be TurnComplete")
	}
}

func TestReceiveTurn_ConsecutiveTurns(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSetup(t, conn)
		for _, text := range []string{"first", "second"} {
			writeJSON(t, conn, map[string]any{
				"serverContent": map[string]any{
					"outputTranscription": map[string]any{"text": text},
					"turnComplete":        true,
				},
			})
		}
		waitClosed(conn)
	})

	sess := connect(t, newProvider(srv), live.Config{})
	for _, want := range []string{"first", "second"} {
		evs, err := receiveTurn(t, sess)
		if err != nil {
			t.Fatalf("ReceiveTurn: %v", err)
		}
		if len(evs) != 1 || evs[0].OutputTranscript != want || !evs[0].TurnComplete {
			t.Errorf("turn = %+v, want single %q event", evs, want)
		}
	}
}

func TestReceiveTurn_ServerErrorIsFatal(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSetup(t, conn)
		writeJSON(t, conn, map[string]any{
			"error": map[string]any{"code": 429, "message": "quota exceeded"},
		})
		waitClosed(conn)
	})

	sess := connect(t, newProvider(srv), live.Config{})
	_, err := receiveTurn(t, sess)
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("err = %v, want quota exceeded", err)
	}
}

func TestReceiveTurn_RemoteAbnormalClose(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSetup(t, conn)
		conn.Close(websocket.StatusInternalError, "boom")
	})

	sess := connect(t, newProvider(srv), live.Config{})
	_, err := receiveTurn(t, sess)
	if err == nil {
		t.Fatal("expected receive error")
	}
	if errors.Is(err, live.ErrSessionClosed) {
		t.Errorf("abnormal close should not look orderly: %v", err)
	}
}

func TestReceiveTurn_AfterClose(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSetup(t, conn)
		waitClosed(conn)
	})

	sess := connect(t, newProvider(srv), live.Config{})
	sess.Close()

	_, err := receiveTurn(t, sess)
	if !errors.Is(err, live.ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
}

func TestEvents_FlattensWebsocketTurns(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		acceptSetup(t, conn)
		for i := 0; i < 3; i++ {
			writeJSON(t, conn, map[string]any{
				"serverContent": map[string]any{"modelTurn": map[string]any{"parts": []map[string]any{audioPart([]byte{byte(i), 0})}}},
			})
			writeJSON(t, conn, map[string]any{"serverContent": map[string]any{"turnComplete": true}})
		}
		waitClosed(conn)
	})

	sess := connect(t, newProvider(srv), live.Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var chunks []byte
	turns := 0
	for ev, err := range live.Events(ctx, sess) {
		if err != nil {
			t.Fatalf("Events: %v", err)
		}
		for _, a := range ev.Audio {
			chunks = append(chunks, a[0])
		}
		if ev.TurnComplete {
			turns++
			if turns == 3 {
				break
			}
		}
	}
	if string(chunks) != string([]byte{0, 1, 2}) {
		t.Errorf("chunk order = %v, want [0 1 2]", chunks)
	}
}
