package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/patloader/types"
)

// ObjectStore 远程对象存储。对象不存在时返回包裹 ErrObjectNotFound 的错误。
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// DefaultCategory 远程键中的默认模型类别
const DefaultCategory = "pat"

// Fetcher 将远程对象下载到本地路径。
// 不做重试：重试属于调用方策略。
type Fetcher struct {
	store    ObjectStore
	category string
	ext      string
	sink     MetricsSink
	logger   *zap.Logger
	now      func() time.Time
}

// NewFetcher 创建下载器；store 可以为 nil，此时 Fetch 返回配置错误
func NewFetcher(store ObjectStore, category, ext string, sink MetricsSink, logger *zap.Logger) *Fetcher {
	if category == "" {
		category = DefaultCategory
	}
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		store:    store,
		category: category,
		ext:      trimDot(ext),
		sink:     sink,
		logger:   logger.With(zap.String("component", "fetcher")),
		now:      time.Now,
	}
}

// Configured 是否配置了远程存储
func (f *Fetcher) Configured() bool {
	return f.store != nil
}

// RemoteKey 返回 models/{category}/{size}/v{version}.{ext}，空版本为 latest
func (f *Fetcher) RemoteKey(size Size, version string) string {
	if version == "" {
		version = VersionLatest
	}
	key := fmt.Sprintf("models/%s/%s/v%s", f.category, size, version)
	if f.ext != "" {
		key += "." + f.ext
	}
	return key
}

// Fetch 下载对象并原子写入 dest，返回写入字节数
func (f *Fetcher) Fetch(ctx context.Context, size Size, version, dest string) (int64, error) {
	if f.store == nil {
		return 0, newLoadError(types.ErrConfiguration, size, versionOrLatest(version), StageDownload, ErrNoRemoteStore)
	}

	key := f.RemoteKey(size, version)
	start := f.now()

	data, err := f.store.Download(ctx, key)
	if err == nil {
		err = writeFileAtomic(dest, data)
	}
	duration := f.now().Sub(start)

	if err != nil {
		f.sink.RecordFetch(size, false, duration, 0)
		f.logger.Warn("remote fetch failed",
			zap.String("key", key),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		code := types.ErrTransferFailed
		if errors.Is(err, ErrObjectNotFound) {
			code = types.ErrArtifactNotFound
		}
		return 0, asLoadError(fmt.Errorf("fetch %s: %w", key, err), code, size, versionOrLatest(version), StageDownload)
	}

	f.sink.RecordFetch(size, true, duration, int64(len(data)))
	f.logger.Info("remote fetch completed",
		zap.String("key", key),
		zap.String("dest", dest),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", duration),
	)
	return int64(len(data)), nil
}

// writeFileAtomic 写入同目录临时文件、fsync 后 rename，读者永远看不到半截文件
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) // cleanup on failure
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func versionOrLatest(version string) string {
	if version == "" {
		return VersionLatest
	}
	return version
}

func trimDot(ext string) string {
	if len(ext) > 0 && ext[0] == '.' {
		return ext[1:]
	}
	return ext
}
