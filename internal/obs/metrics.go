package obs

import (
	"context"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Recorder holds the instruments the wait-and-dispatch engine and the
// intra-process manager report against, built once at startup.
type Recorder struct {
	dispatches    metric.Int64Counter
	waitDuration  metric.Float64Histogram
	ringEvictions metric.Int64Counter
}

// NewRecorder builds a Recorder against the process-wide MeterProvider
// (set by NewConsoleExporter/NewPrometheusExporter, or the SDK no-op
// default if neither ran).
func NewRecorder(meterName string) (*Recorder, error) {
	meter := otel.Meter(meterName)

	dispatches, err := meter.Int64Counter(
		"rclgo.executor.dispatches",
		metric.WithDescription("Executables dispatched, by kind."),
	)
	if err != nil {
		return nil, err
	}

	waitDuration, err := meter.Float64Histogram(
		"rclgo.executor.wait_duration_seconds",
		metric.WithDescription("Time spent blocked in Middleware.Wait per selection pass."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ringEvictions, err := meter.Int64Counter(
		"rclgo.intraprocess.ring_evictions",
		metric.WithDescription("Messages dropped from an intra-process ring buffer on overflow."),
	)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		dispatches:    dispatches,
		waitDuration:  waitDuration,
		ringEvictions: ringEvictions,
	}, nil
}

// MustNewRecorder is NewRecorder for callers (typically fx constructors)
// that treat instrument registration failure as fatal.
func MustNewRecorder(meterName string) *Recorder {
	return lo.Must(NewRecorder(meterName))
}

// RecordDispatch increments the dispatch counter for kind ("timer",
// "subscription", "service", "client").
func (r *Recorder) RecordDispatch(ctx context.Context, kind string) {
	if r == nil {
		return
	}
	r.dispatches.Add(ctx, 1, metric.WithAttributes(attrKind(kind)))
}

// RecordWait records how long a selectOnce pass spent inside Wait.
func (r *Recorder) RecordWait(ctx context.Context, seconds float64) {
	if r == nil {
		return
	}
	r.waitDuration.Record(ctx, seconds)
}

// RecordRingEviction increments the eviction counter for the named topic.
func (r *Recorder) RecordRingEviction(ctx context.Context, topic string) {
	if r == nil {
		return
	}
	r.ringEvictions.Add(ctx, 1, metric.WithAttributes(attrTopic(topic)))
}
