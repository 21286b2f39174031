// Package observe provides application-wide observability primitives for
// WhisperBrain: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all WhisperBrain
// metrics.
const meterName = "github.com/MihirPatel5/WhisperBrain"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// UtteranceDuration tracks the audio length of each captured utterance
	// in seconds of speech.
	UtteranceDuration metric.Float64Histogram

	// ExchangeDuration tracks wall-clock time from uploading an utterance
	// to receiving the spoken reply.
	ExchangeDuration metric.Float64Histogram

	// --- Counters ---

	// FramesCaptured counts audio frames read from the input device.
	FramesCaptured metric.Int64Counter

	// Utterances counts endpointed utterances. Use with attribute:
	//   attribute.String("outcome", ...) — "sent", "discarded"
	Utterances metric.Int64Counter

	// WSMessages counts WebSocket messages on the backend session. Use with
	// attributes:
	//   attribute.String("direction", ...), attribute.String("kind", ...)
	WSMessages metric.Int64Counter

	// Reconnects counts reconnection attempts. Use with attribute:
	//   attribute.String("outcome", ...) — "ok", "failed", "gave_up"
	Reconnects metric.Int64Counter

	// --- Error counters ---

	// BackendErrors counts errors reported by or while talking to the
	// backend. Use with attribute:
	//   attribute.String("phase", ...)
	BackendErrors metric.Int64Counter

	// --- Gauges ---

	// SessionConnected tracks whether the backend session is live (0 or 1).
	SessionConnected metric.Int64UpDownCounter

	// PendingExchanges tracks utterances sent and still awaiting a reply.
	PendingExchanges metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// spoken utterances and full backend round trips, which run into tens of
// seconds rather than milliseconds.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.UtteranceDuration, err = m.Float64Histogram("whisperbrain.utterance.duration",
		metric.WithDescription("Audio length of each captured utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExchangeDuration, err = m.Float64Histogram("whisperbrain.exchange.duration",
		metric.WithDescription("Round-trip time from utterance upload to spoken reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesCaptured, err = m.Int64Counter("whisperbrain.audio.frames",
		metric.WithDescription("Total audio frames read from the input device."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("whisperbrain.utterances",
		metric.WithDescription("Total endpointed utterances by outcome."),
	); err != nil {
		return nil, err
	}
	if met.WSMessages, err = m.Int64Counter("whisperbrain.ws.messages",
		metric.WithDescription("Total WebSocket messages by direction and kind."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("whisperbrain.reconnects",
		metric.WithDescription("Total reconnection attempts by outcome."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.BackendErrors, err = m.Int64Counter("whisperbrain.backend.errors",
		metric.WithDescription("Total backend errors by pipeline phase."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.SessionConnected, err = m.Int64UpDownCounter("whisperbrain.session.connected",
		metric.WithDescription("Whether the backend session is live (0 or 1)."),
	); err != nil {
		return nil, err
	}
	if met.PendingExchanges, err = m.Int64UpDownCounter("whisperbrain.exchange.pending",
		metric.WithDescription("Utterances sent and still awaiting a reply."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("whisperbrain.http.request.duration",
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

// RecordUtterance is a convenience method that records an utterance counter
// increment together with its audio length.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string, seconds float64) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	m.UtteranceDuration.Record(ctx, seconds)
}

// RecordWSMessage is a convenience method that records a WebSocket message
// counter increment with the standard attribute set.
func (m *Metrics) RecordWSMessage(ctx context.Context, direction, kind string) {
	m.WSMessages.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("direction", direction),
			attribute.String("kind", kind),
		),
	)
}

// RecordReconnect is a convenience method that records a reconnection attempt
// counter increment.
func (m *Metrics) RecordReconnect(ctx context.Context, outcome string) {
	m.Reconnects.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordBackendError is a convenience method that records a backend error
// counter increment.
func (m *Metrics) RecordBackendError(ctx context.Context, phase string) {
	m.BackendErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("phase", phase)),
	)
}
