// Package observe provides application-wide observability primitives for the
// visualizer: OpenTelemetry metrics and the Prometheus exporter bridge behind
// the /metrics endpoint.
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

// meterName is the instrumentation scope name used for all visualizer metrics.
const meterName = "github.com/myselfshravan/wiz-hack"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// FrameDuration tracks the analyze→map→smooth→dispatch time per frame.
	FrameDuration metric.Float64Histogram

	// FramesProcessed counts frames that completed the full pipeline.
	FramesProcessed metric.Int64Counter

	// FramesDropped counts frames discarded because a newer frame arrived
	// before the worker picked up the previous one.
	FramesDropped metric.Int64Counter

	// FramesSkipped counts frames abandoned mid-pipeline after a stage error.
	FramesSkipped metric.Int64Counter

	// Beats counts detected onsets.
	Beats metric.Int64Counter

	// CommandsSent counts setPilot datagrams by device. Use with attribute:
	//   attribute.String("device", ...)
	CommandsSent metric.Int64Counter

	// CommandsCoalesced counts commands absorbed by the per-device rate
	// limiter, by device.
	CommandsCoalesced metric.Int64Counter

	// SendErrors counts failed datagram writes by device.
	SendErrors metric.Int64Counter
}

// frameBuckets defines histogram bucket boundaries (in seconds) sized for a
// per-frame budget of one hop time (~46ms at 1024 samples / 22050 Hz).
var frameBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FrameDuration, err = m.Float64Histogram("wizsync.frame.duration",
		metric.WithDescription("Per-frame pipeline processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}

	if met.FramesProcessed, err = m.Int64Counter("wizsync.frames.processed",
		metric.WithDescription("Total frames that completed the pipeline."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("wizsync.frames.dropped",
		metric.WithDescription("Total frames dropped in favour of a newer frame."),
	); err != nil {
		return nil, err
	}
	if met.FramesSkipped, err = m.Int64Counter("wizsync.frames.skipped",
		metric.WithDescription("Total frames abandoned after a stage error."),
	); err != nil {
		return nil, err
	}
	if met.Beats, err = m.Int64Counter("wizsync.beats",
		metric.WithDescription("Total detected onsets."),
	); err != nil {
		return nil, err
	}

	if met.CommandsSent, err = m.Int64Counter("wizsync.commands.sent",
		metric.WithDescription("Total setPilot datagrams sent by device."),
	); err != nil {
		return nil, err
	}
	if met.CommandsCoalesced, err = m.Int64Counter("wizsync.commands.coalesced",
		metric.WithDescription("Total commands absorbed by the rate limiter by device."),
	); err != nil {
		return nil, err
	}
	if met.SendErrors, err = m.Int64Counter("wizsync.send.errors",
		metric.WithDescription("Total failed datagram writes by device."),
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

// DeviceAttr is the standard attribute set for per-device counters.
func DeviceAttr(device string) metric.AddOption {
	return metric.WithAttributes(attribute.String("device", device))
}

// RecordFrame records one completed frame and its processing time.
func (m *Metrics) RecordFrame(ctx context.Context, seconds float64) {
	m.FrameDuration.Record(ctx, seconds)
	m.FramesProcessed.Add(ctx, 1)
}

// RecordSend records the outcome of one datagram write to a device.
func (m *Metrics) RecordSend(ctx context.Context, device string, err error) {
	if err != nil {
		m.SendErrors.Add(ctx, 1, DeviceAttr(device))
		return
	}
	m.CommandsSent.Add(ctx, 1, DeviceAttr(device))
}
