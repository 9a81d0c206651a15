package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useRecorder installs an in-memory span exporter as the global tracer
// provider for the duration of the test. Tests using it must not run in
// parallel.
func useRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func TestTurnSpan_RecordsEntriesAndInterruptions(t *testing.T) {
	exp := useRecorder(t)

	_, ts := StartTurn(context.Background())
	ts.Interrupted(3)
	if d := ts.End(2, nil); d < 0 {
		t.Errorf("End returned negative duration %v", d)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Name != "relay.turn" {
		t.Errorf("span name = %q, want relay.turn", s.Name)
	}
	var entries int64 = -1
	for _, kv := range s.Attributes {
		if kv.Key == "turn.entries" {
			entries = kv.Value.AsInt64()
		}
	}
	if entries != 2 {
		t.Errorf("turn.entries = %d, want 2", entries)
	}
	if len(s.Events) != 1 || s.Events[0].Name != "interrupted" {
		t.Fatalf("events = %+v, want one interrupted event", s.Events)
	}
	if got := s.Events[0].Attributes[0].Value.AsInt64(); got != 3 {
		t.Errorf("discarded chunks = %d, want 3", got)
	}
	if s.Status.Code == codes.Error {
		t.Error("successful turn marked as error")
	}
}

func TestTurnSpan_EndWithError(t *testing.T) {
	exp := useRecorder(t)

	_, ts := StartTurn(context.Background())
	ts.End(0, errors.New("stream reset"))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error || spans[0].Status.Description != "stream reset" {
		t.Errorf("status = %+v, want error %q", spans[0].Status, "stream reset")
	}
}

func TestTurnSpan_NilIsNoop(t *testing.T) {
	t.Parallel()

	var ts *TurnSpan
	ts.Interrupted(1)
	if d := ts.End(1, nil); d != 0 {
		t.Errorf("nil End = %v, want 0", d)
	}
}

func TestLogger_TraceCorrelation(t *testing.T) {
	useRecorder(t)
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	Logger(context.Background()).Info("outside")
	ctx, ts := StartTurn(context.Background())
	Logger(ctx).Info("inside")
	ts.End(0, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2:\n%s", len(lines), buf.String())
	}
	if strings.Contains(lines[0], "trace_id=") {
		t.Errorf("line without span carries trace_id: %s", lines[0])
	}
	if !strings.Contains(lines[1], "trace_id=") || !strings.Contains(lines[1], "span_id=") {
		t.Errorf("line inside turn misses trace ids: %s", lines[1])
	}
}
