package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/patloader/artifact"
	"github.com/BaSui01/patloader/artifact/objectstore"
	"github.com/BaSui01/patloader/artifact/weights"
	"github.com/BaSui01/patloader/config"
	"github.com/BaSui01/patloader/internal/history"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// loaderStack 加载器及其依赖（远程存储、版本历史）
type loaderStack struct {
	Loader  *artifact.Loader
	Store   artifact.ObjectStore
	History *history.Store

	db     *gorm.DB
	logger *zap.Logger
}

// stackOptions 由调用方提供的观测组件
type stackOptions struct {
	Sink   artifact.MetricsSink
	Tracer trace.Tracer
}

// buildLoaderStack 按配置组装远程存储、版本历史和 Loader
func buildLoaderStack(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts stackOptions) (_ *loaderStack, err error) {
	s := &loaderStack{logger: logger}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	s.Store, err = objectstore.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure object store: %w", err)
	}

	if cfg.Database.Enabled {
		s.db, err = history.Open(cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		s.History, err = history.NewStore(s.db, logger)
		if err != nil {
			return nil, err
		}
		if err = s.History.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate history schema: %w", err)
		}
	}

	lopts, err := loaderOptions(cfg)
	if err != nil {
		return nil, err
	}
	lopts.Store = s.Store
	if s.History != nil {
		lopts.History = s.History
	}
	lopts.Sink = opts.Sink
	lopts.Tracer = opts.Tracer
	lopts.Logger = logger

	s.Loader, err = artifact.NewLoader(lopts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// loaderOptions 把配置映射为 LoaderOptions（不含运行期依赖）
func loaderOptions(cfg *config.Config) (artifact.LoaderOptions, error) {
	a := cfg.Artifacts

	algorithm, err := artifact.ParseAlgorithm(a.ChecksumAlgorithm)
	if err != nil {
		return artifact.LoaderOptions{}, err
	}

	return artifact.LoaderOptions{
		Root:                   a.Root,
		Prefix:                 a.Prefix,
		Extension:              a.Extension,
		Category:               a.Category,
		CacheTTL:               a.CacheTTL,
		Runtime:                weights.PatchEmbedRuntime{},
		ChecksumAlgorithm:      algorithm,
		PinnedChecksums:        a.PinnedChecksums,
		DisableSingleFlight:    !a.SingleFlight,
		FallbackMode:           artifact.FallbackMode(a.FallbackMode),
		EstimatedArtifactBytes: a.EstimatedArtifactBytes,
	}, nil
}

// preloadSizes 解析预加载规格列表
func preloadSizes(names []string) ([]artifact.Size, error) {
	sizes := make([]artifact.Size, 0, len(names))
	for _, n := range names {
		size, err := artifact.ParseSize(strings.TrimSpace(n))
		if err != nil {
			return nil, err
		}
		sizes = append(sizes, size)
	}
	return sizes, nil
}

// Close 关闭远程存储与数据库连接
func (s *loaderStack) Close() error {
	var errs []error
	if s.Store != nil {
		if err := objectstore.Close(s.Store); err != nil {
			errs = append(errs, fmt.Errorf("close object store: %w", err))
		}
	}
	if s.db != nil {
		if err := history.Close(s.db); err != nil {
			errs = append(errs, fmt.Errorf("close history database: %w", err))
		}
	}
	return errors.Join(errs...)
}
