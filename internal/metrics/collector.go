// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/patloader/artifact"
	"github.com/BaSui01/patloader/types"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，同时实现 artifact.MetricsSink
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 加载指标
	loadsTotal   *prometheus.CounterVec
	loadDuration *prometheus.HistogramVec
	loadProgress *prometheus.GaugeVec

	// 缓存指标
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	cacheEntries     prometheus.Gauge
	cacheMemoryBytes prometheus.Gauge

	// 下载指标
	fetchTotal    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchBytes    *prometheus.CounterVec

	// 校验指标
	checksumsTotal   *prometheus.CounterVec
	validationsTotal *prometheus.CounterVec

	// 版本指标
	currentVersion *prometheus.GaugeVec
	fallbacksTotal *prometheus.CounterVec
	hotSwapsTotal  *prometheus.CounterVec

	logger *zap.Logger
}

var _ artifact.MetricsSink = (*Collector)(nil)

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 加载指标
	c.loadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_loads_total",
			Help:      "Total number of artifact loads",
		},
		[]string{"size", "source", "status", "code"},
	)

	c.loadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_load_duration_seconds",
			Help:      "Artifact load duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"size", "source"},
	)

	c.loadProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_load_progress",
			Help:      "Progress of the most recent load per size (0..1)",
		},
		[]string{"size"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"size"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"size"},
	)

	c.cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Number of artifacts held in the cache",
		},
	)

	c.cacheMemoryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_estimated_memory_bytes",
			Help:      "Estimated memory held by cached artifacts",
		},
	)

	// 下载指标
	c.fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Total number of remote artifact fetches",
		},
		[]string{"size", "status"},
	)

	c.fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Remote fetch duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
		[]string{"size"},
	)

	c.fetchBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_bytes_total",
			Help:      "Total bytes downloaded from the remote store",
		},
		[]string{"size"},
	)

	// 校验指标
	c.checksumsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checksums_total",
			Help:      "Total number of artifact checksums computed",
		},
		[]string{"size", "algorithm"},
	)

	c.validationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Total number of validation checks",
		},
		[]string{"size", "check", "status", "code"},
	)

	// 版本指标
	c.currentVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_version_info",
			Help:      "Current artifact version per size, value is always 1",
		},
		[]string{"size", "version"},
	)

	c.fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total number of fallback attempts",
		},
		[]string{"size", "status"},
	)

	c.hotSwapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hot_swaps_total",
			Help:      "Total number of detected artifact version changes",
		},
		[]string{"size"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 📦 制品指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(size artifact.Size, version string) {
	c.cacheHits.WithLabelValues(string(size)).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(size artifact.Size, version string) {
	c.cacheMisses.WithLabelValues(string(size)).Inc()
}

// RecordFetch 记录远程下载
func (c *Collector) RecordFetch(size artifact.Size, success bool, duration time.Duration, bytes int64) {
	c.fetchTotal.WithLabelValues(string(size), status(success)).Inc()
	c.fetchDuration.WithLabelValues(string(size)).Observe(duration.Seconds())
	if bytes > 0 {
		c.fetchBytes.WithLabelValues(string(size)).Add(float64(bytes))
	}
}

// RecordChecksum 记录校验和计算
func (c *Collector) RecordChecksum(size artifact.Size, version, algorithm, checksum string) {
	c.checksumsTotal.WithLabelValues(string(size), algorithm).Inc()
	c.logger.Debug("artifact checksum",
		zap.String("size", string(size)),
		zap.String("version", version),
		zap.String("algorithm", algorithm),
		zap.String("checksum", checksum),
	)
}

// RecordValidation 记录校验结果
func (c *Collector) RecordValidation(size artifact.Size, check string, success bool, code types.ErrorCode) {
	c.validationsTotal.WithLabelValues(string(size), check, status(success), string(code)).Inc()
}

// RecordProgress 记录加载进度
func (c *Collector) RecordProgress(event artifact.ProgressEvent) {
	c.loadProgress.WithLabelValues(string(event.Size)).Set(event.Progress)
}

// RecordCurrentVersion 记录当前版本；同一 size 只保留一个版本序列
func (c *Collector) RecordCurrentVersion(size artifact.Size, version string) {
	c.currentVersion.DeletePartialMatch(prometheus.Labels{"size": string(size)})
	c.currentVersion.WithLabelValues(string(size), version).Set(1)
}

// RecordCacheState 记录缓存规模
func (c *Collector) RecordCacheState(entries int, estimatedBytes int64) {
	c.cacheEntries.Set(float64(entries))
	c.cacheMemoryBytes.Set(float64(estimatedBytes))
}

// RecordLoad 记录一次加载的结果
func (c *Collector) RecordLoad(size artifact.Size, source artifact.Source, success bool, duration time.Duration, code types.ErrorCode) {
	c.loadsTotal.WithLabelValues(string(size), string(source), status(success), string(code)).Inc()
	c.loadDuration.WithLabelValues(string(size), string(source)).Observe(duration.Seconds())
}

// RecordFallback 记录回退
func (c *Collector) RecordFallback(size artifact.Size, from, to string, success bool) {
	c.fallbacksTotal.WithLabelValues(string(size), status(success)).Inc()
	c.logger.Info("artifact fallback",
		zap.String("size", string(size)),
		zap.String("from", from),
		zap.String("to", to),
		zap.Bool("success", success),
	)
}

// RecordHotSwap 记录版本热切换
func (c *Collector) RecordHotSwap(size artifact.Size, from, to string) {
	c.hotSwapsTotal.WithLabelValues(string(size)).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
