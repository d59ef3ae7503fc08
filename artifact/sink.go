package artifact

import (
	"time"

	"github.com/BaSui01/patloader/types"
)

// ProgressEvent 加载进度检查点
type ProgressEvent struct {
	LoadID   string    `json:"load_id"`
	Size     Size      `json:"size"`
	Version  string    `json:"version"`
	Stage    Stage     `json:"stage"`
	Progress float64   `json:"progress"`
	Time     time.Time `json:"time"`
}

// MetricsSink 观测事件接收方。
//
// 所有方法都是即发即忘的：实现不得阻塞，也不能影响加载结果。
type MetricsSink interface {
	RecordCacheHit(size Size, version string)
	RecordCacheMiss(size Size, version string)
	RecordFetch(size Size, success bool, duration time.Duration, bytes int64)
	RecordChecksum(size Size, version, algorithm, checksum string)
	RecordValidation(size Size, check string, success bool, code types.ErrorCode)
	RecordProgress(event ProgressEvent)
	RecordCurrentVersion(size Size, version string)
	RecordCacheState(entries int, estimatedBytes int64)
	RecordLoad(size Size, source Source, success bool, duration time.Duration, code types.ErrorCode)
	RecordFallback(size Size, from, to string, success bool)
	RecordHotSwap(size Size, from, to string)
}

// NopSink 丢弃所有事件
type NopSink struct{}

func (NopSink) RecordCacheHit(Size, string) {}
func (NopSink) RecordCacheMiss(Size, string) {}
func (NopSink) RecordFetch(Size, bool, time.Duration, int64) {}
func (NopSink) RecordChecksum(Size, string, string, string) {}
func (NopSink) RecordValidation(Size, string, bool, types.ErrorCode) {}
func (NopSink) RecordProgress(ProgressEvent) {}
func (NopSink) RecordCurrentVersion(Size, string) {}
func (NopSink) RecordCacheState(int, int64) {}
func (NopSink) RecordLoad(Size, Source, bool, time.Duration, types.ErrorCode) {}
func (NopSink) RecordFallback(Size, string, string, bool) {}
func (NopSink) RecordHotSwap(Size, string, string) {}

// MultiSink 将事件依次转发给多个 sink
type MultiSink []MetricsSink

func (m MultiSink) RecordCacheHit(size Size, version string) {
	for _, s := range m {
		s.RecordCacheHit(size, version)
	}
}

func (m MultiSink) RecordCacheMiss(size Size, version string) {
	for _, s := range m {
		s.RecordCacheMiss(size, version)
	}
}

func (m MultiSink) RecordFetch(size Size, success bool, duration time.Duration, bytes int64) {
	for _, s := range m {
		s.RecordFetch(size, success, duration, bytes)
	}
}

func (m MultiSink) RecordChecksum(size Size, version, algorithm, checksum string) {
	for _, s := range m {
		s.RecordChecksum(size, version, algorithm, checksum)
	}
}

func (m MultiSink) RecordValidation(size Size, check string, success bool, code types.ErrorCode) {
	for _, s := range m {
		s.RecordValidation(size, check, success, code)
	}
}

func (m MultiSink) RecordProgress(event ProgressEvent) {
	for _, s := range m {
		s.RecordProgress(event)
	}
}

func (m MultiSink) RecordCurrentVersion(size Size, version string) {
	for _, s := range m {
		s.RecordCurrentVersion(size, version)
	}
}

func (m MultiSink) RecordCacheState(entries int, estimatedBytes int64) {
	for _, s := range m {
		s.RecordCacheState(entries, estimatedBytes)
	}
}

func (m MultiSink) RecordLoad(size Size, source Source, success bool, duration time.Duration, code types.ErrorCode) {
	for _, s := range m {
		s.RecordLoad(size, source, success, duration, code)
	}
}

func (m MultiSink) RecordFallback(size Size, from, to string, success bool) {
	for _, s := range m {
		s.RecordFallback(size, from, to, success)
	}
}

func (m MultiSink) RecordHotSwap(size Size, from, to string) {
	for _, s := range m {
		s.RecordHotSwap(size, from, to)
	}
}

var (
	_ MetricsSink = NopSink{}
	_ MetricsSink = MultiSink(nil)
)
