package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/patloader/artifact"
	"github.com/BaSui01/patloader/config"
	"github.com/BaSui01/patloader/internal/tlsutil"
)

// 后端类型
const (
	BackendNone  = "none"
	BackendFile  = "file"
	BackendHTTP  = "http"
	BackendRedis = "redis"
)

// Uploader 可写入的存储
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) error
}

// timeoutStore 为每次下载加上超时
type timeoutStore struct {
	inner   artifact.ObjectStore
	timeout time.Duration
}

// WithTimeout 包装 store；timeout <= 0 时原样返回
func WithTimeout(store artifact.ObjectStore, timeout time.Duration) artifact.ObjectStore {
	if store == nil || timeout <= 0 {
		return store
	}
	return &timeoutStore{inner: store, timeout: timeout}
}

func (t *timeoutStore) Download(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Download(ctx, key)
}

func (t *timeoutStore) Upload(ctx context.Context, key string, data []byte) error {
	up, ok := t.inner.(Uploader)
	if !ok {
		return fmt.Errorf("store %T does not support upload", t.inner)
	}
	return up.Upload(ctx, key, data)
}

func (t *timeoutStore) Close() error {
	if c, ok := t.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// New 按配置构造远程存储。backend 为 none 时返回 nil store。
// 返回的 store 若实现 io.Closer，调用方负责关闭。
func New(cfg *config.Config, logger *zap.Logger) (artifact.ObjectStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var store artifact.ObjectStore
	switch strings.ToLower(cfg.Remote.Backend) {
	case "", BackendNone:
		return nil, nil
	case BackendFile:
		store = NewFileStore(cfg.Remote.Root)
	case BackendHTTP:
		client, err := tlsutil.DownloadClient(cfg.Remote.CAFile)
		if err != nil {
			return nil, fmt.Errorf("http backend TLS: %w", err)
		}
		store = NewHTTPStore(cfg.Remote.BaseURL, WithHTTPClient(client))
	case BackendRedis:
		rs, err := NewRedisStore(cfg.Redis, cfg.Remote.KeyPrefix, logger)
		if err != nil {
			return nil, err
		}
		store = rs
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Remote.Backend)
	}

	if cfg.Remote.Decompress {
		store = Decompressing(store)
	}
	store = WithTimeout(store, cfg.Remote.Timeout)

	logger.Info("object store configured",
		zap.String("backend", cfg.Remote.Backend),
		zap.Duration("timeout", cfg.Remote.Timeout),
		zap.Bool("decompress", cfg.Remote.Decompress),
	)
	return store, nil
}

// Close 关闭 store（若支持）
func Close(store artifact.ObjectStore) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
