package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/BaSui01/patloader/artifact"
	"github.com/BaSui01/patloader/types"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestMeterSink_RecordsLoads(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	sink, err := NewMeterSink(mp.Meter(InstrumentationName))
	require.NoError(t, err)

	var _ artifact.MetricsSink = sink

	sink.RecordLoad(artifact.SizeSmall, artifact.SourceLocal, true, 30*time.Millisecond, "")
	sink.RecordLoad(artifact.SizeSmall, artifact.SourceRemote, false, time.Second, types.ErrTransferFailed)
	sink.RecordFetch(artifact.SizeSmall, true, time.Second, 2048)
	sink.RecordFetch(artifact.SizeSmall, false, time.Second, 0)
	sink.RecordFallback(artifact.SizeSmall, "2", "1", true)
	sink.RecordCacheHit(artifact.SizeSmall, "1")

	data := collect(t, reader)

	loads, ok := data["patloader.loads"].(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range loads.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)
	assert.Len(t, loads.DataPoints, 2)

	fetched, ok := data["patloader.fetch.bytes"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, fetched.DataPoints, 1)
	assert.Equal(t, int64(2048), fetched.DataPoints[0].Value)

	_, ok = data["patloader.load.duration"].(metricdata.Histogram[float64])
	assert.True(t, ok)

	fallbacks, ok := data["patloader.fallbacks"].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, fallbacks.DataPoints, 1)
}
