package mocks

import (
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/patloader/artifact"
	"github.com/BaSui01/patloader/types"
)

// RecordingSink 记录加载器上报的事件，供断言使用
type RecordingSink struct {
	artifact.NopSink

	mu          sync.Mutex
	progress    []artifact.ProgressEvent
	hits        int
	misses      int
	checksums   []string
	loads       []bool
	codes       []types.ErrorCode
	fallbacks   []string
	swaps       []string
	current     []string
	cacheStates []int
}

var _ artifact.MetricsSink = (*RecordingSink)(nil)

func (s *RecordingSink) RecordProgress(ev artifact.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, ev)
}

func (s *RecordingSink) RecordCacheHit(artifact.Size, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits++
}

func (s *RecordingSink) RecordCacheMiss(artifact.Size, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.misses++
}

func (s *RecordingSink) RecordChecksum(_ artifact.Size, _, _, checksum string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checksums = append(s.checksums, checksum)
}

func (s *RecordingSink) RecordLoad(_ artifact.Size, _ artifact.Source, success bool, _ time.Duration, code types.ErrorCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = append(s.loads, success)
	s.codes = append(s.codes, code)
}

func (s *RecordingSink) RecordFallback(_ artifact.Size, from, to string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbacks = append(s.fallbacks, fmt.Sprintf("%s->%s:%t", from, to, success))
}

func (s *RecordingSink) RecordHotSwap(size artifact.Size, from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swaps = append(s.swaps, fmt.Sprintf("%s:%s->%s", size, from, to))
}

func (s *RecordingSink) RecordCurrentVersion(_ artifact.Size, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = append(s.current, version)
}

func (s *RecordingSink) RecordCacheState(entries int, _ int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheStates = append(s.cacheStates, entries)
}

// Hits 缓存命中次数
func (s *RecordingSink) Hits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

// Misses 缓存未命中次数
func (s *RecordingSink) Misses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.misses
}

// Checksums 按顺序返回记录的摘要
func (s *RecordingSink) Checksums() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.checksums...)
}

// Loads 每次加载是否成功
func (s *RecordingSink) Loads() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.loads...)
}

// Codes 每次加载的错误码，成功时为空
func (s *RecordingSink) Codes() []types.ErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ErrorCode(nil), s.codes...)
}

// Fallbacks 形如 "5->4:true"
func (s *RecordingSink) Fallbacks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fallbacks...)
}

// HotSwaps 形如 "small:1->2"
func (s *RecordingSink) HotSwaps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.swaps...)
}

// CurrentVersions 按顺序返回登记的当前版本
func (s *RecordingSink) CurrentVersions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.current...)
}

// CacheStates 每次上报的缓存条目数
func (s *RecordingSink) CacheStates() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.cacheStates...)
}

// Progress 按顺序返回进度事件
func (s *RecordingSink) Progress() []artifact.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]artifact.ProgressEvent(nil), s.progress...)
}
