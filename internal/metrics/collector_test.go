package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/patloader/artifact"
	"github.com/BaSui01/patloader/types"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.loadsTotal)
	assert.NotNil(t, collector.cacheHits)
	assert.NotNil(t, collector.currentVersion)
}

func TestNewCollector_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(nextTestNamespace(), nil)
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/api/v1/artifacts/small", 200, 100*time.Millisecond, 0, 2048)
	collector.RecordHTTPRequest("GET", "/api/v1/artifacts/small", 200, 50*time.Millisecond, 0, 1024)
	collector.RecordHTTPRequest("GET", "/api/v1/artifacts/huge", 400, time.Millisecond, 0, 64)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/v1/artifacts/small", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/api/v1/artifacts/huge", "4xx")))
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit(artifact.SizeSmall, "2")
	collector.RecordCacheHit(artifact.SizeSmall, "2")
	collector.RecordCacheMiss(artifact.SizeLarge, "latest")
	collector.RecordCacheState(3, 3*256<<20)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("small")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheMisses.WithLabelValues("large")))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.cacheEntries))
	assert.Equal(t, float64(3*256<<20), testutil.ToFloat64(collector.cacheMemoryBytes))
}

func TestCollector_RecordLoad(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordLoad(artifact.SizeMedium, artifact.SourceLocal, true, 20*time.Millisecond, "")
	collector.RecordLoad(artifact.SizeMedium, artifact.SourceRemote, false, time.Second, types.ErrTransferFailed)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.loadsTotal.WithLabelValues("medium", "local", "success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.loadsTotal.WithLabelValues("medium", "remote", "failure", "TRANSFER_FAILED")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.loadDuration))
}

func TestCollector_RecordFetchAndVerify(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordFetch(artifact.SizeSmall, true, time.Second, 4096)
	collector.RecordFetch(artifact.SizeSmall, false, time.Second, 0)
	collector.RecordChecksum(artifact.SizeSmall, "3", "sha256", "abc")
	collector.RecordValidation(artifact.SizeSmall, artifact.ValidationCheck, false, types.ErrValidationFailed)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.fetchTotal.WithLabelValues("small", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.fetchTotal.WithLabelValues("small", "failure")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(collector.fetchBytes.WithLabelValues("small")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.checksumsTotal.WithLabelValues("small", "sha256")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.validationsTotal.WithLabelValues("small", "forward_pass", "failure", "VALIDATION_FAILED")))
}

func TestCollector_CurrentVersionKeepsOneSeriesPerSize(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCurrentVersion(artifact.SizeSmall, "1")
	collector.RecordCurrentVersion(artifact.SizeSmall, "2")
	collector.RecordCurrentVersion(artifact.SizeLarge, "7")

	assert.Equal(t, 2, testutil.CollectAndCount(collector.currentVersion))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.currentVersion.WithLabelValues("small", "2")))
}

func TestCollector_ProgressFallbackHotSwap(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordProgress(artifact.ProgressEvent{Size: artifact.SizeSmall, Progress: 0.6})
	collector.RecordFallback(artifact.SizeSmall, "5", "4", true)
	collector.RecordHotSwap(artifact.SizeSmall, "4", "5")

	assert.Equal(t, 0.6, testutil.ToFloat64(collector.loadProgress.WithLabelValues("small")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.fallbacksTotal.WithLabelValues("small", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.hotSwapsTotal.WithLabelValues("small")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 0, 2048)
			collector.RecordLoad(artifact.SizeSmall, artifact.SourceCache, true, time.Millisecond, "")
			collector.RecordCacheHit(artifact.SizeSmall, "1")
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.cacheHits.WithLabelValues("small")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/test", "2xx")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()

	// 创建 collector（会自动注册到默认 registry）
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	// 手动注册到自定义 registry
	registry.MustRegister(collector.loadsTotal)
	registry.MustRegister(collector.cacheEntries)

	collector.RecordCacheState(1, 10)

	count, err := testutil.GatherAndCount(registry)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{304, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
		{100, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}
