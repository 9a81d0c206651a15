// Package observe provides application-wide observability primitives for
// livevoice: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all livevoice metrics.
const meterName = "github.com/MrWong99/livevoice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Uplink ---

	// CapturedFrames counts frames read from the capture device. Use with
	// attribute.String("outcome", "forwarded"|"gated").
	CapturedFrames metric.Int64Counter

	// CaptureErrors counts transient capture device read errors.
	CaptureErrors metric.Int64Counter

	// SentFrames counts frames uploaded to the remote session.
	SentFrames metric.Int64Counter

	// SendDuration tracks how long a single upload takes.
	SendDuration metric.Float64Histogram

	// --- Downlink ---

	// ReceivedChunks counts audio chunks received from the model.
	ReceivedChunks metric.Int64Counter

	// PlayedChunks counts audio chunks written to the playback device.
	PlayedChunks metric.Int64Counter

	// DiscardedChunks counts queued chunks dropped by interruptions.
	DiscardedChunks metric.Int64Counter

	// PlaybackWriteDuration tracks the blocking time of one device write.
	PlaybackWriteDuration metric.Float64Histogram

	// --- Turns and history ---

	// Turns counts completed turns.
	Turns metric.Int64Counter

	// Interruptions counts barge-ins reported by the model.
	Interruptions metric.Int64Counter

	// TurnDuration tracks the time from the first event of a turn to its
	// completion.
	TurnDuration metric.Float64Histogram

	// HistoryEntries counts finalized entries. Use with
	// attribute.String("role", ...).
	HistoryEntries metric.Int64Counter

	// HistorySaveErrors counts failed history saves.
	HistorySaveErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open remote sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks ops server requests by method, path and
	// status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// per-frame and per-chunk operations.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// turnBuckets covers whole conversational turns.
var turnBuckets = []float64{
	0.5, 1, 2, 5, 10, 20, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.CapturedFrames, "livevoice.capture.frames", "Frames read from the capture device by outcome."},
		{&met.CaptureErrors, "livevoice.capture.errors", "Transient capture device read errors."},
		{&met.SentFrames, "livevoice.uplink.frames", "Frames uploaded to the remote session."},
		{&met.ReceivedChunks, "livevoice.downlink.chunks", "Audio chunks received from the model."},
		{&met.PlayedChunks, "livevoice.playback.chunks", "Audio chunks written to the playback device."},
		{&met.DiscardedChunks, "livevoice.playback.discarded_chunks", "Queued audio chunks discarded by interruptions."},
		{&met.Turns, "livevoice.turns", "Completed conversational turns."},
		{&met.Interruptions, "livevoice.interruptions", "Interruptions reported by the model."},
		{&met.HistoryEntries, "livevoice.history.entries", "Finalized history entries by role."},
		{&met.HistorySaveErrors, "livevoice.history.save_errors", "Failed history saves."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	// Histograms.
	if met.SendDuration, err = m.Float64Histogram("livevoice.uplink.send.duration",
		metric.WithDescription("Latency of uploading one audio frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackWriteDuration, err = m.Float64Histogram("livevoice.playback.write.duration",
		metric.WithDescription("Blocking time of one playback device write."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("livevoice.turn.duration",
		metric.WithDescription("Duration of a conversational turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(turnBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("livevoice.active_sessions",
		metric.WithDescription("Number of open remote sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("livevoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCapturedFrame counts one captured frame as forwarded or gated.
func (m *Metrics) RecordCapturedFrame(ctx context.Context, forwarded bool) {
	outcome := "gated"
	if forwarded {
		outcome = "forwarded"
	}
	m.CapturedFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordHistoryEntry counts one finalized entry for role.
func (m *Metrics) RecordHistoryEntry(ctx context.Context, role string) {
	m.HistoryEntries.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}
