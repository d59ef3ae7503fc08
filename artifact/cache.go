package artifact

import (
	"sync"
	"time"
)

// =============================================================================
// 💾 TTL 缓存
// =============================================================================

// TTLCache 带过期时间的内存缓存。
//
// 过期采用惰性淘汰：只有再次 Get 某个键时才会删除已过期条目，没有后台清理协程。
// 键空间受规格数 × 活跃版本数约束，残留条目的内存开销可以忽略。
type TTLCache[K comparable, V any] struct {
	mu    sync.Mutex
	items map[K]ttlEntry[V]
	ttl   time.Duration
	now   func() time.Time
}

type ttlEntry[V any] struct {
	value    V
	storedAt time.Time
}

// CacheOption 配置 TTLCache
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	now func() time.Time
}

// WithClock 注入时间源，测试中用于确定性地推进时间
func WithClock(now func() time.Time) CacheOption {
	return func(o *cacheOptions) { o.now = now }
}

// NewTTLCache 创建缓存；ttl <= 0 表示条目永不过期
func NewTTLCache[K comparable, V any](ttl time.Duration, opts ...CacheOption) *TTLCache[K, V] {
	o := cacheOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTLCache[K, V]{
		items: make(map[K]ttlEntry[V]),
		ttl:   ttl,
		now:   o.now,
	}
}

// Get 返回未过期的值；过期条目会被删除并视为不存在
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.items[key]
	if !ok {
		return zero, false
	}

	if c.ttl > 0 && c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.items, key)
		return zero, false
	}

	return entry.value, true
}

// Set 无条件覆盖写入并刷新插入时间
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = ttlEntry[V]{value: value, storedAt: c.now()}
}

// Delete 删除键，返回键是否存在
func (c *TTLCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.items[key]
	delete(c.items, key)
	return ok
}

// Clear 清空全部条目
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]ttlEntry[V])
}

// Len 返回当前存储的条目数（包含尚未被查到的过期条目）
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

// TTL 返回缓存的过期时间
func (c *TTLCache[K, V]) TTL() time.Duration {
	return c.ttl
}
