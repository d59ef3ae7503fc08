package artifact

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HotSwapWatcher 轮询产物目录，某规格的本地最新版本变化时使 latest 缓存槽失效。
//
// 启用 preload 时会立即重新加载 latest，让下一个请求直接命中缓存。
type HotSwapWatcher struct {
	mu sync.Mutex

	loader   *Loader
	sink     MetricsSink
	sizes    []Size
	interval time.Duration
	preload  bool
	logger   *zap.Logger

	running  bool
	stopChan chan struct{}
	done     chan struct{}

	// 每个规格上次观察到的最新版本
	latest map[Size]string
}

// HotSwapOption 配置 HotSwapWatcher
type HotSwapOption func(*HotSwapWatcher)

// WithHotSwapInterval 设置轮询间隔
func WithHotSwapInterval(d time.Duration) HotSwapOption {
	return func(w *HotSwapWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithHotSwapPreload 版本变化后立即预加载
func WithHotSwapPreload(preload bool) HotSwapOption {
	return func(w *HotSwapWatcher) {
		w.preload = preload
	}
}

// WithHotSwapSizes 限定监听的规格
func WithHotSwapSizes(sizes ...Size) HotSwapOption {
	return func(w *HotSwapWatcher) {
		if len(sizes) > 0 {
			w.sizes = sizes
		}
	}
}

// WithHotSwapLogger 设置日志
func WithHotSwapLogger(logger *zap.Logger) HotSwapOption {
	return func(w *HotSwapWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewHotSwapWatcher 创建热切换监听器，初始快照取自当前目录状态
func NewHotSwapWatcher(loader *Loader, sink MetricsSink, opts ...HotSwapOption) *HotSwapWatcher {
	if sink == nil {
		sink = NopSink{}
	}
	w := &HotSwapWatcher{
		loader:   loader,
		sink:     sink,
		sizes:    Sizes(),
		interval: 30 * time.Second,
		logger:   zap.NewNop(),
		latest:   make(map[Size]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "hot_swap"))

	for _, size := range w.sizes {
		if v, ok := loader.Resolver().LatestVersion(size); ok {
			w.latest[size] = v
		}
	}
	return w
}

// SwapEvent 一次检测到的版本变化
type SwapEvent struct {
	Size Size   `json:"size"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Scan 比较各规格的最新本地版本与上次快照，返回发生的变化
func (w *HotSwapWatcher) Scan(ctx context.Context) []SwapEvent {
	w.mu.Lock()
	var events []SwapEvent
	for _, size := range w.sizes {
		current, _ := w.loader.Resolver().LatestVersion(size)
		previous := w.latest[size]
		if current == previous {
			continue
		}
		if current == "" {
			delete(w.latest, size)
		} else {
			w.latest[size] = current
		}
		events = append(events, SwapEvent{Size: size, From: previous, To: current})
	}
	preload := w.preload
	w.mu.Unlock()

	for _, ev := range events {
		w.loader.InvalidateLatest(ev.Size)
		w.sink.RecordHotSwap(ev.Size, ev.From, ev.To)
		w.logger.Info("latest artifact version changed",
			zap.String("size", string(ev.Size)),
			zap.String("from", ev.From),
			zap.String("to", ev.To),
		)

		if preload && ev.To != "" {
			if _, err := w.loader.Load(ctx, ev.Size, "", true); err != nil {
				w.logger.Warn("hot swap preload failed",
					zap.String("size", string(ev.Size)),
					zap.String("version", ev.To),
					zap.Error(err),
				)
			}
		}
	}
	return events
}

// Start 启动轮询协程
func (w *HotSwapWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("hot swap watcher already running")
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})

	go w.pollLoop(ctx, w.stopChan, w.done)

	w.logger.Info("hot swap watcher started",
		zap.String("root", w.loader.Resolver().Root()),
		zap.Duration("interval", w.interval),
		zap.Bool("preload", w.preload),
	)
	return nil
}

// Stop 停止轮询并等待协程退出
func (w *HotSwapWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopChan)
	done := w.done
	w.running = false
	w.mu.Unlock()

	<-done
	w.logger.Info("hot swap watcher stopped")
}

func (w *HotSwapWatcher) pollLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			w.Scan(ctx)
		}
	}
}
