package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the livevoice tracer.
const tracerName = "github.com/MrWong99/livevoice"

// Tracer returns the livevoice tracer from the global [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// TurnSpan traces one conversational turn, from its first server event to
// turn completion. A nil *TurnSpan is a no-op.
type TurnSpan struct {
	span  trace.Span
	start time.Time
}

// StartTurn opens a "relay.turn" span. The returned context carries it so
// logs and metrics recorded during the turn share its trace id.
func StartTurn(ctx context.Context) (context.Context, *TurnSpan) {
	ctx, span := StartSpan(ctx, "relay.turn", trace.WithSpanKind(trace.SpanKindInternal))
	return ctx, &TurnSpan{span: span, start: time.Now()}
}

// Interrupted marks that the model was cut off and n queued chunks were
// discarded.
func (t *TurnSpan) Interrupted(n int) {
	if t == nil {
		return
	}
	t.span.AddEvent("interrupted", trace.WithAttributes(attribute.Int("turn.discarded_chunks", n)))
}

// End closes the span with the number of history entries the turn produced
// and returns the turn's duration. A non-nil err marks the span failed.
func (t *TurnSpan) End(entries int, err error) time.Duration {
	if t == nil {
		return 0
	}
	t.span.SetAttributes(attribute.Int("turn.entries", entries))
	if err != nil {
		t.span.RecordError(err)
		t.span.SetStatus(codes.Error, err.Error())
	}
	t.span.End()
	return time.Since(t.start)
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries a sampled span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
