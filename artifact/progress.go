package artifact

import (
	"sync"
	"sync/atomic"
)

// ProgressHub 把加载进度广播给订阅者。
//
// 订阅通道带缓冲；消费过慢的订阅者会丢事件，广播方从不阻塞。
type ProgressHub struct {
	NopSink

	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]chan ProgressEvent
	buffer  int
	dropped atomic.Int64
}

// NewProgressHub 创建进度广播器，buffer 为每个订阅者的通道容量
func NewProgressHub(buffer int) *ProgressHub {
	if buffer <= 0 {
		buffer = 64
	}
	return &ProgressHub{
		subs:   make(map[uint64]chan ProgressEvent),
		buffer: buffer,
	}
}

// Subscribe 注册订阅者，返回事件通道和取消函数。取消后通道被关闭。
func (h *ProgressHub) Subscribe() (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, h.buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers 返回当前订阅者数量
func (h *ProgressHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped 返回因订阅者过慢而丢弃的事件总数
func (h *ProgressHub) Dropped() int64 {
	return h.dropped.Load()
}

// RecordProgress implements MetricsSink.
func (h *ProgressHub) RecordProgress(event ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

var _ MetricsSink = (*ProgressHub)(nil)
