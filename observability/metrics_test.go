package observability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newManualRecorder wires a Recorder to an in-memory reader so recorded
// values can be collected and inspected.
func newManualRecorder(t *testing.T) (*Recorder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return NewRecorder(provider.Meter("test")), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func metricByName(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestNewRecorder_NilMeter(t *testing.T) {
	r := NewRecorder(nil)
	require.NotNil(t, r)

	// Recording through the noop meter must not panic.
	ctx := context.Background()
	r.RecordNodeSuccess(ctx, "scan")
	r.RecordNodeDuration(ctx, time.Second, "scan", "completed")
	r.AddInflight(ctx, 1)
	r.AddInflight(ctx, -1)
}

func TestRecorder_RecordCounter(t *testing.T) {
	r, reader := newManualRecorder(t)
	ctx := context.Background()

	r.RecordCounter(ctx, MetricNodesExecuted, 2, map[string]string{"kind": "scan"})
	r.RecordCounter(ctx, MetricNodesExecuted, 3, map[string]string{"kind": "scan"})

	rm := collect(t, reader)
	m, ok := metricByName(rm, MetricNodesExecuted)
	require.True(t, ok)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(5), sum.DataPoints[0].Value)
}

func TestRecorder_NodeCounters(t *testing.T) {
	r, reader := newManualRecorder(t)
	ctx := context.Background()

	r.RecordNodeSuccess(ctx, "scan")
	r.RecordNodeSuccess(ctx, "report")
	r.RecordNodeFailure(ctx, "scan")
	r.RecordNodeSkipped(ctx, "report")

	rm := collect(t, reader)

	executed, ok := metricByName(rm, MetricNodesExecuted)
	require.True(t, ok)
	sum := executed.Data.(metricdata.Sum[int64])
	assert.Len(t, sum.DataPoints, 2, "one series per node kind")

	_, ok = metricByName(rm, MetricNodesFailed)
	assert.True(t, ok)
	_, ok = metricByName(rm, MetricNodesSkipped)
	assert.True(t, ok)
}

func TestRecorder_RecordHistogram(t *testing.T) {
	r, reader := newManualRecorder(t)
	ctx := context.Background()

	r.RecordNodeDuration(ctx, 1500*time.Millisecond, "scan", "completed")
	r.RecordNodeDuration(ctx, 500*time.Millisecond, "scan", "completed")

	rm := collect(t, reader)
	m, ok := metricByName(rm, MetricNodeDuration)
	require.True(t, ok)

	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.Equal(t, 2000.0, hist.DataPoints[0].Sum, "durations recorded in milliseconds")
}

func TestRecorder_RecordRunDuration(t *testing.T) {
	r, reader := newManualRecorder(t)

	r.RecordRunDuration(context.Background(), 3*time.Second, "completed")

	rm := collect(t, reader)
	m, ok := metricByName(rm, MetricRunDuration)
	require.True(t, ok)

	hist := m.Data.(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, 3000.0, hist.DataPoints[0].Sum)
}

func TestRecorder_AddInflight(t *testing.T) {
	r, reader := newManualRecorder(t)
	ctx := context.Background()

	r.AddInflight(ctx, 1)
	r.AddInflight(ctx, 1)
	r.AddInflight(ctx, -1)

	rm := collect(t, reader)
	m, ok := metricByName(rm, MetricNodesInflight)
	require.True(t, ok)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

// TestRecorder_InstrumentCaching verifies an instrument is created once
// and reused on later calls.
func TestRecorder_InstrumentCaching(t *testing.T) {
	r, _ := newManualRecorder(t)
	ctx := context.Background()

	r.RecordCounter(ctx, "cached.counter", 1, nil)
	first := r.counters["cached.counter"]
	require.NotNil(t, first)

	r.RecordCounter(ctx, "cached.counter", 1, nil)
	assert.Equal(t, first, r.counters["cached.counter"])
	assert.Len(t, r.counters, 1)
}

// TestRecorder_ConcurrentRecording exercises the double-checked instrument
// creation path under contention.
func TestRecorder_ConcurrentRecording(t *testing.T) {
	r, reader := newManualRecorder(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordNodeSuccess(ctx, "scan")
			r.AddInflight(ctx, 1)
			r.AddInflight(ctx, -1)
		}()
	}
	wg.Wait()

	rm := collect(t, reader)
	m, ok := metricByName(rm, MetricNodesExecuted)
	require.True(t, ok)
	sum := m.Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(20), sum.DataPoints[0].Value)
}

func TestLabelsToAttributes(t *testing.T) {
	attrs := labelsToAttributes(map[string]string{"kind": "scan"})
	require.Len(t, attrs, 1)
	assert.Equal(t, "kind", string(attrs[0].Key))
	assert.Equal(t, "scan", attrs[0].Value.AsString())

	assert.Empty(t, labelsToAttributes(nil))
}
