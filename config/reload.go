// 配置文件变更重载。
//
// 轮询配置文件修改时间，变更后经过防抖重新加载并校验，再通知回调。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadCallback 配置重新加载成功后调用
type ReloadCallback func(oldConfig, newConfig *Config)

// ReloaderOption 配置 Reloader
type ReloaderOption func(*Reloader)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithDebounceDelay 设置变更防抖时间
func WithDebounceDelay(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		r.debounce = d
	}
}

// WithReloaderLogger 设置记录器
func WithReloaderLogger(logger *zap.Logger) ReloaderOption {
	return func(r *Reloader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Reloader 监听单个配置文件，文件变化时重新执行 Loader.Load 与 Validate。
// 加载或校验失败时保留当前配置。
type Reloader struct {
	mu sync.RWMutex

	loader   *Loader
	path     string
	interval time.Duration
	debounce time.Duration
	logger   *zap.Logger

	current   *Config
	callbacks []ReloadCallback
	lastMod   time.Time
	reloads   int
	failures  int

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewReloader 创建配置重载器。current 为启动时已加载的配置。
func NewReloader(path string, current *Config, opts ...ReloaderOption) (*Reloader, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required for reloading")
	}
	if current == nil {
		return nil, fmt.Errorf("current config is required")
	}

	r := &Reloader{
		loader:   NewLoader().WithConfigPath(path),
		path:     path,
		interval: time.Second,
		debounce: 100 * time.Millisecond,
		logger:   zap.NewNop(),
		current:  current,
	}
	for _, opt := range opts {
		opt(r)
	}

	if info, err := os.Stat(path); err == nil {
		r.lastMod = info.ModTime()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
	}

	return r, nil
}

// OnReload 注册重载回调
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Current 返回当前生效的配置
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Stats 返回成功与失败的重载次数
func (r *Reloader) Stats() (reloads, failures int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reloads, r.failures
}

// Start 启动轮询
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reloader already running")
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stop, r.done
	r.mu.Unlock()

	go r.pollLoop(ctx, stop, done)

	r.logger.Info("config reloader started",
		zap.String("path", r.path),
		zap.Duration("interval", r.interval))
	return nil
}

// Stop 停止轮询并等待后台 goroutine 退出
func (r *Reloader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()

	<-done
	r.logger.Info("config reloader stopped")
}

func (r *Reloader) pollLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if !r.changed() {
				continue
			}
			// 等待写入完成，避免读到半个文件
			if r.debounce > 0 {
				select {
				case <-ctx.Done():
					return
				case <-stop:
					return
				case <-time.After(r.debounce):
				}
				r.changed()
			}
			if err := r.Reload(); err != nil {
				r.logger.Warn("config reload failed, keeping current config", zap.Error(err))
			}
		}
	}
}

// changed 比较修改时间并更新记录
func (r *Reloader) changed() bool {
	info, err := os.Stat(r.path)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !info.ModTime().After(r.lastMod) {
		return false
	}
	r.lastMod = info.ModTime()
	return true
}

// Reload 立即重新加载配置文件
func (r *Reloader) Reload() error {
	next, err := r.loader.Load()
	if err == nil {
		err = next.Validate()
	}

	r.mu.Lock()
	if err != nil {
		r.failures++
		r.mu.Unlock()
		return err
	}
	old := r.current
	r.current = next
	r.reloads++
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	r.logger.Info("configuration reloaded", zap.String("path", r.path))
	for _, cb := range callbacks {
		r.notify(cb, old, next)
	}
	return nil
}

// notify 执行回调并捕获 panic
func (r *Reloader) notify(cb ReloadCallback, oldConfig, newConfig *Config) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("config reload callback panicked", zap.Any("panic", rec))
		}
	}()
	cb(oldConfig, newConfig)
}
