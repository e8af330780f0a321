package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metric names recorded by the workflow dispatcher. Centralizing them
// keeps dashboards and alerts in sync with the code.
const (
	MetricNodesExecuted = "taskgraph.nodes.executed"
	MetricNodesFailed   = "taskgraph.nodes.failed"
	MetricNodesSkipped  = "taskgraph.nodes.skipped"
	MetricNodesInflight = "taskgraph.nodes.inflight"
	MetricNodeDuration  = "taskgraph.node.duration"
	MetricRunDuration   = "taskgraph.run.duration"
)

// Recorder lazily creates OpenTelemetry instruments by name and records
// workflow metrics against them. Instruments are cached after first use.
// All methods are safe for concurrent use.
type Recorder struct {
	meter      metric.Meter
	mu         sync.RWMutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	updowns    map[string]metric.Int64UpDownCounter
}

// NewRecorder creates a recorder on the given meter. A nil meter yields a
// recorder whose instruments discard every measurement, so callers never
// need to guard recording calls.
func NewRecorder(meter metric.Meter) *Recorder {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("taskgraph")
	}
	return &Recorder{
		meter:      meter,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		updowns:    make(map[string]metric.Int64UpDownCounter),
	}
}

// RecordCounter adds value to the named counter.
func (r *Recorder) RecordCounter(ctx context.Context, name string, value int64, labels map[string]string) {
	counter := r.getOrCreateCounter(name)
	if counter == nil {
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(labelsToAttributes(labels)...))
}

// RecordHistogram records value in the named histogram.
func (r *Recorder) RecordHistogram(ctx context.Context, name string, value float64, labels map[string]string) {
	histogram := r.getOrCreateHistogram(name)
	if histogram == nil {
		return
	}
	histogram.Record(ctx, value, metric.WithAttributes(labelsToAttributes(labels)...))
}

// AddInflight adjusts the in-flight node gauge by delta.
func (r *Recorder) AddInflight(ctx context.Context, delta int64) {
	updown := r.getOrCreateUpDown(MetricNodesInflight)
	if updown == nil {
		return
	}
	updown.Add(ctx, delta)
}

// RecordNodeSuccess counts one completed node.
func (r *Recorder) RecordNodeSuccess(ctx context.Context, kind string) {
	r.RecordCounter(ctx, MetricNodesExecuted, 1, map[string]string{"kind": kind})
}

// RecordNodeFailure counts one failed node.
func (r *Recorder) RecordNodeFailure(ctx context.Context, kind string) {
	r.RecordCounter(ctx, MetricNodesFailed, 1, map[string]string{"kind": kind})
}

// RecordNodeSkipped counts one node skipped because of an upstream
// failure.
func (r *Recorder) RecordNodeSkipped(ctx context.Context, kind string) {
	r.RecordCounter(ctx, MetricNodesSkipped, 1, map[string]string{"kind": kind})
}

// RecordNodeDuration records how long one node ran, in milliseconds.
func (r *Recorder) RecordNodeDuration(ctx context.Context, d time.Duration, kind, status string) {
	r.RecordHistogram(ctx, MetricNodeDuration, float64(d.Milliseconds()), map[string]string{
		"kind":   kind,
		"status": status,
	})
}

// RecordRunDuration records the wall-clock duration of one execution
// pass, in milliseconds.
func (r *Recorder) RecordRunDuration(ctx context.Context, d time.Duration, status string) {
	r.RecordHistogram(ctx, MetricRunDuration, float64(d.Milliseconds()), map[string]string{
		"status": status,
	})
}

// getOrCreateCounter retrieves or creates a counter instrument.
func (r *Recorder) getOrCreateCounter(name string) metric.Int64Counter {
	r.mu.RLock()
	counter, exists := r.counters[name]
	r.mu.RUnlock()
	if exists {
		return counter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check in case another goroutine created it.
	if counter, exists := r.counters[name]; exists {
		return counter
	}
	counter, err := r.meter.Int64Counter(name)
	if err != nil {
		return nil
	}
	r.counters[name] = counter
	return counter
}

// getOrCreateHistogram retrieves or creates a histogram instrument.
func (r *Recorder) getOrCreateHistogram(name string) metric.Float64Histogram {
	r.mu.RLock()
	histogram, exists := r.histograms[name]
	r.mu.RUnlock()
	if exists {
		return histogram
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if histogram, exists := r.histograms[name]; exists {
		return histogram
	}
	histogram, err := r.meter.Float64Histogram(name)
	if err != nil {
		return nil
	}
	r.histograms[name] = histogram
	return histogram
}

// getOrCreateUpDown retrieves or creates an up-down counter instrument.
func (r *Recorder) getOrCreateUpDown(name string) metric.Int64UpDownCounter {
	r.mu.RLock()
	updown, exists := r.updowns[name]
	r.mu.RUnlock()
	if exists {
		return updown
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if updown, exists := r.updowns[name]; exists {
		return updown
	}
	updown, err := r.meter.Int64UpDownCounter(name)
	if err != nil {
		return nil
	}
	r.updowns[name] = updown
	return updown
}

// labelsToAttributes converts a label map to OpenTelemetry attributes.
func labelsToAttributes(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}
