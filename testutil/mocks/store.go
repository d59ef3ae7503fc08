// Package mocks 提供测试用的 ObjectStore 与 MetricsSink 实现。
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/patloader/artifact"
)

// MemoryStore 内存对象存储，可注入错误和延迟
type MemoryStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	downloads int
	err       error
	delay     time.Duration
}

var _ artifact.ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore 创建空存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put 写入对象
func (s *MemoryStore) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
}

// FailWith 之后的下载都返回 err；传 nil 恢复
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// SetDelay 每次下载前等待 d，期间响应 ctx 取消
func (s *MemoryStore) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Download implements artifact.ObjectStore.
func (s *MemoryStore) Download(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	s.downloads++
	delay, injected := s.delay, s.err
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if injected != nil {
		return nil, injected
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, artifact.ErrObjectNotFound)
	}
	return data, nil
}

// Upload 与 Put 相同，满足 objectstore.Uploader
func (s *MemoryStore) Upload(_ context.Context, key string, data []byte) error {
	s.Put(key, data)
	return nil
}

// Downloads 返回 Download 被调用的次数
func (s *MemoryStore) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads
}
