package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/patloader/types"
)

const tracerName = "github.com/BaSui01/patloader/artifact"

// FallbackMode 回退版本的推导方式
type FallbackMode string

const (
	// FallbackDecrement 将当前版本末尾数字减一
	FallbackDecrement FallbackMode = "decrement"
	// FallbackHistory 查询持久化版本历史中更早的版本
	FallbackHistory FallbackMode = "history"
)

// 默认值
const (
	DefaultPrefix                 = "artifact"
	DefaultExtension              = "bin"
	DefaultCacheTTL               = time.Hour
	DefaultEstimatedArtifactBytes = 256 << 20
)

// LoaderOptions Loader 构造参数
type LoaderOptions struct {
	Root      string
	Prefix    string
	Extension string
	Category  string
	CacheTTL  time.Duration

	// Store 远程存储，可选
	Store   ObjectStore
	Runtime Runtime
	Sink    MetricsSink
	// History 持久化版本历史，可选；FallbackHistory 模式下必填
	History VersionHistory

	ChecksumAlgorithm Algorithm
	PinnedChecksums   map[string]string

	DisableSingleFlight bool
	FallbackMode        FallbackMode

	// EstimatedArtifactBytes 每个缓存条目的估算内存，用于缓存状态上报
	EstimatedArtifactBytes int64

	Logger *zap.Logger
	Clock  func() time.Time
	Tracer trace.Tracer
}

// LoaderMetrics 加载统计快照
type LoaderMetrics struct {
	AverageLoadTimeMs float64         `json:"average_load_time_ms"`
	TotalLoads        int             `json:"total_loads"`
	CachedCount       int             `json:"cached_models"`
	CurrentVersions   map[Size]string `json:"current_versions"`
}

// Loader 产物加载编排器：缓存查询、版本解析、远程拉取、校验、加载、自检、缓存写入与版本登记。
//
// 缓存和当前版本表只在加载成功后才被修改，进行中的加载不会暴露半更新状态。
type Loader struct {
	resolver *Resolver
	fetcher  *Fetcher
	verifier *Verifier
	runtime  Runtime
	cache    *TTLCache[string, *Artifact]
	versions *VersionRegistry
	history  VersionHistory
	sink     MetricsSink

	group          singleflight.Group
	flightMu       sync.Mutex
	flights        map[string]*flight
	flightSeq      uint64
	singleFlight   bool
	fallbackMode   FallbackMode
	estimatedBytes int64

	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time

	statsMu    sync.Mutex
	totalLoads int
	totalTime  time.Duration
}

// NewLoader 创建 Loader
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Root == "" {
		return nil, types.NewError(types.ErrConfiguration, "artifact root is required")
	}
	if opts.Runtime == nil {
		return nil, types.NewError(types.ErrConfiguration, "artifact runtime is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	if opts.EstimatedArtifactBytes <= 0 {
		opts.EstimatedArtifactBytes = DefaultEstimatedArtifactBytes
	}
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	switch opts.FallbackMode {
	case "":
		opts.FallbackMode = FallbackDecrement
	case FallbackDecrement:
	case FallbackHistory:
		if opts.History == nil {
			return nil, types.NewError(types.ErrConfiguration, "fallback mode \"history\" requires a version history")
		}
	default:
		return nil, types.NewError(types.ErrConfiguration, fmt.Sprintf("unknown fallback mode %q", opts.FallbackMode))
	}

	algorithm, err := ParseAlgorithm(string(opts.ChecksumAlgorithm))
	if err != nil {
		return nil, err
	}

	fetcher := NewFetcher(opts.Store, opts.Category, opts.Extension, opts.Sink, opts.Logger)
	fetcher.now = opts.Clock

	return &Loader{
		resolver:       NewResolver(opts.Root, opts.Prefix, opts.Extension),
		fetcher:        fetcher,
		verifier:       NewVerifier(algorithm, opts.PinnedChecksums, opts.Sink),
		runtime:        opts.Runtime,
		cache:          NewTTLCache[string, *Artifact](opts.CacheTTL, WithClock(opts.Clock)),
		versions:       NewVersionRegistry(),
		history:        opts.History,
		sink:           opts.Sink,
		flights:        make(map[string]*flight),
		singleFlight:   !opts.DisableSingleFlight,
		fallbackMode:   opts.FallbackMode,
		estimatedBytes: opts.EstimatedArtifactBytes,
		logger:         opts.Logger.With(zap.String("component", "loader")),
		tracer:         opts.Tracer,
		now:            opts.Clock,
	}, nil
}

// Resolver 返回 Loader 使用的版本解析器
func (l *Loader) Resolver() *Resolver {
	return l.resolver
}

// Load 加载 (size, version) 的产物。version 为空或 "latest" 时取本地最新版本并共享 latest 缓存槽；
// forceReload 跳过缓存检查。
func (l *Loader) Load(ctx context.Context, size Size, version string, forceReload bool) (*Artifact, error) {
	if version == VersionLatest {
		version = ""
	}
	if !size.Valid() {
		return nil, newLoadError(types.ErrConfiguration, size, versionOrLatest(version), StageInit,
			fmt.Errorf("unknown artifact size %q", size))
	}
	if err := ValidateVersion(version); err != nil {
		return nil, newLoadError(types.ErrInvalidRequest, size, version, StageInit, err)
	}

	key := CacheKey(size, version)
	if !forceReload {
		if a, ok := l.cache.Get(key); ok {
			l.sink.RecordCacheHit(size, versionOrLatest(version))
			l.sink.RecordLoad(size, SourceCache, true, 0, "")
			l.reportCacheState()
			l.logger.Debug("artifact served from cache", zap.String("key", key))
			return a, nil
		}
		l.sink.RecordCacheMiss(size, versionOrLatest(version))
	}

	if !l.singleFlight {
		return l.run(ctx, size, version, forceReload, nil)
	}

	flightKey := key
	if forceReload {
		flightKey += "#force"
	}
	return l.loadShared(ctx, flightKey, size, version, forceReload)
}

// run 执行一次完整流水线并上报结果
func (l *Loader) run(ctx context.Context, size Size, version string, forceReload bool, onStage func(Stage)) (*Artifact, error) {
	lc := newLoadContext(size, version, forceReload, l.now())
	lc.onStage = onStage
	ctx = types.WithLoadID(ctx, lc.ID)

	ctx, span := l.tracer.Start(ctx, "artifact.Load", trace.WithAttributes(
		attribute.String("artifact.size", string(size)),
		attribute.String("artifact.version", lc.Version),
		attribute.Bool("artifact.force_reload", forceReload),
		attribute.String("artifact.load_id", lc.ID),
	))
	defer span.End()

	a, err := l.pipeline(ctx, lc, version)
	duration := lc.Elapsed(l.now())

	if err != nil {
		le := asLoadError(err, types.ErrInternalError, size, lc.Version, lc.Stage)
		lc.fail(le)
		span.RecordError(le)
		span.SetStatus(codes.Error, string(le.Code))
		l.sink.RecordLoad(size, lc.Source, false, duration, le.Code)
		l.logger.Error("artifact load failed",
			zap.String("load_id", lc.ID),
			zap.String("size", string(size)),
			zap.String("version", lc.Version),
			zap.String("stage", string(le.Stage)),
			zap.String("code", string(le.Code)),
			zap.Duration("duration", duration),
			zap.Error(le.Err),
		)
		return nil, le
	}

	span.SetAttributes(
		attribute.String("artifact.source", string(lc.Source)),
		attribute.String("artifact.resolved_version", a.Version.Version),
	)
	span.SetStatus(codes.Ok, "")
	l.sink.RecordLoad(size, lc.Source, true, duration, "")
	l.logger.Info("artifact loaded",
		zap.String("load_id", lc.ID),
		zap.String("key", CacheKey(size, version)),
		zap.String("resolved_version", a.Version.Version),
		zap.String("source", string(lc.Source)),
		zap.String("checksum", a.Version.Checksum),
		zap.Duration("duration", duration),
	)
	return a, nil
}

func (l *Loader) pipeline(ctx context.Context, lc *LoadContext, version string) (*Artifact, error) {
	size := lc.Size
	cfg := size.Config()

	if err := l.checkpoint(ctx, lc, StageInit, 0.1); err != nil {
		return nil, err
	}

	lc.enter(StageResolve)
	res := l.resolver.Resolve(size, version)
	resolved := res.Version
	if resolved == "" {
		resolved = lc.Version
	}

	lc.Source = SourceLocal
	if _, err := os.Stat(res.Path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, newLoadError(types.ErrArtifactNotFound, size, lc.Version, StageResolve, err)
		}

		lc.Source = SourceRemote
		if err := l.checkpoint(ctx, lc, StageDownload, 0.2); err != nil {
			return nil, err
		}
		if _, err := l.fetcher.Fetch(ctx, size, version, res.Path); err != nil {
			return nil, err
		}
		if err := l.checkpoint(ctx, lc, StageDownload, 0.5); err != nil {
			return nil, err
		}
	}

	if err := l.checkpoint(ctx, lc, StageChecksum, 0.6); err != nil {
		return nil, err
	}
	checksum, data, err := l.verifier.VerifyFile(res.Path)
	if err != nil {
		code := types.ErrCorruptArtifact
		if errors.Is(err, fs.ErrNotExist) {
			code = types.ErrArtifactNotFound
		}
		return nil, newLoadError(code, size, lc.Version, StageChecksum, err)
	}
	l.sink.RecordChecksum(size, resolved, string(l.verifier.Algorithm()), checksum)
	if err := l.verifier.CheckPinned(size, resolved, checksum); err != nil {
		return nil, newLoadError(types.ErrCorruptArtifact, size, lc.Version, StageChecksum, err)
	}
	if err := l.checkpoint(ctx, lc, StageChecksum, 0.7); err != nil {
		return nil, err
	}

	if err := l.checkpoint(ctx, lc, StageLoad, 0.8); err != nil {
		return nil, err
	}
	model, err := l.runtime.Load(cfg, data)
	if err != nil {
		return nil, newLoadError(types.ErrCorruptArtifact, size, lc.Version, StageLoad, err)
	}

	if err := l.checkpoint(ctx, lc, StageValidate, 0.9); err != nil {
		return nil, err
	}
	shape, err := l.verifier.Validate(ctx, size, model, cfg)
	if err != nil {
		return nil, asLoadError(err, types.ErrValidationFailed, size, lc.Version, StageValidate)
	}

	// 之后的步骤只修改共享状态，不再检查取消
	lc.enter(StageCacheInsert)
	av := ArtifactVersion{
		Version:   resolved,
		LoadedAt:  l.now(),
		Checksum:  checksum,
		Algorithm: l.verifier.Algorithm(),
		Size:      size,
		Source:    lc.Source,
		Metrics: map[string]float64{
			"load_ms": float64(lc.Elapsed(l.now()).Microseconds()) / 1000,
			"bytes":   float64(len(data)),
		},
	}
	a := &Artifact{
		Model:       model,
		Config:      cfg,
		Version:     av,
		Path:        res.Path,
		OutputShape: shape,
	}
	l.cache.Set(CacheKey(size, version), a)

	lc.enter(StageRecordVersion)
	l.versions.Set(av)
	l.sink.RecordCurrentVersion(size, av.Version)
	l.recordHistory(ctx, av)
	l.recordStats(lc.Elapsed(l.now()))
	l.reportCacheState()

	lc.Success = true
	l.progress(ctx, lc, StageComplete, 1.0)
	return a, nil
}

// checkpoint 上报进度并检查取消
func (l *Loader) checkpoint(ctx context.Context, lc *LoadContext, stage Stage, progress float64) error {
	l.progress(ctx, lc, stage, progress)
	if err := ctx.Err(); err != nil {
		return newLoadError(types.ErrCanceled, lc.Size, lc.Version, stage, err)
	}
	return nil
}

func (l *Loader) progress(ctx context.Context, lc *LoadContext, stage Stage, progress float64) {
	lc.enter(stage)
	l.sink.RecordProgress(ProgressEvent{
		LoadID:   lc.ID,
		Size:     lc.Size,
		Version:  lc.Version,
		Stage:    stage,
		Progress: progress,
		Time:     l.now(),
	})
	trace.SpanFromContext(ctx).AddEvent(string(stage), trace.WithAttributes(
		attribute.Float64("progress", progress),
	))
}

func (l *Loader) recordHistory(ctx context.Context, av ArtifactVersion) {
	if l.history == nil {
		return
	}
	if err := l.history.Record(context.WithoutCancel(ctx), av); err != nil {
		l.logger.Warn("failed to record version history",
			zap.String("size", string(av.Size)),
			zap.String("version", av.Version),
			zap.Error(err),
		)
	}
}

func (l *Loader) recordStats(d time.Duration) {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	l.totalLoads++
	l.totalTime += d
}

func (l *Loader) reportCacheState() {
	n := l.cache.Len()
	l.sink.RecordCacheState(n, int64(n)*l.estimatedBytes)
}

// FallbackToPrevious 加载当前版本之前的版本。
// 没有当前版本、无法推导上一版本或上一版本加载失败时返回 FALLBACK_UNAVAILABLE。
func (l *Loader) FallbackToPrevious(ctx context.Context, size Size) (*Artifact, error) {
	current, ok := l.versions.Get(size)
	if !ok {
		return nil, newLoadError(types.ErrFallbackUnavailable, size, VersionLatest, StageInit, ErrNoCurrentVersion)
	}

	target, err := l.previousVersion(ctx, size, current.Version)
	if err != nil {
		l.sink.RecordFallback(size, current.Version, "", false)
		return nil, newLoadError(types.ErrFallbackUnavailable, size, current.Version, StageResolve, err)
	}

	l.logger.Warn("falling back to previous artifact version",
		zap.String("size", string(size)),
		zap.String("from", current.Version),
		zap.String("to", target),
		zap.String("mode", string(l.fallbackMode)),
	)

	a, err := l.Load(ctx, size, target, false)
	if err != nil {
		l.sink.RecordFallback(size, current.Version, target, false)
		stage := StageInit
		var le *LoadError
		if errors.As(err, &le) {
			stage = le.Stage
		}
		return nil, newLoadError(types.ErrFallbackUnavailable, size, target, stage, err)
	}

	l.sink.RecordFallback(size, current.Version, target, true)
	return a, nil
}

func (l *Loader) previousVersion(ctx context.Context, size Size, current string) (string, error) {
	if l.fallbackMode == FallbackHistory {
		return l.history.PreviousVersion(ctx, size, current)
	}
	return PreviousVersion(current)
}

// Metrics 返回加载统计
func (l *Loader) Metrics() LoaderMetrics {
	l.statsMu.Lock()
	total, sum := l.totalLoads, l.totalTime
	l.statsMu.Unlock()

	m := LoaderMetrics{
		TotalLoads:      total,
		CachedCount:     l.cache.Len(),
		CurrentVersions: l.versions.Snapshot(),
	}
	if total > 0 {
		m.AverageLoadTimeMs = float64(sum.Microseconds()) / 1000 / float64(total)
	}
	return m
}

// ClearCache 清空产物缓存，当前版本记录保留
func (l *Loader) ClearCache() {
	l.cache.Clear()
	l.reportCacheState()
	l.logger.Info("artifact cache cleared")
}

// InvalidateLatest 移除规格共享的 latest 缓存槽，返回槽位是否存在
func (l *Loader) InvalidateLatest(size Size) bool {
	removed := l.cache.Delete(CacheKey(size, ""))
	if removed {
		l.reportCacheState()
	}
	return removed
}

// CurrentVersion 返回规格的当前版本记录
func (l *Loader) CurrentVersion(size Size) (ArtifactVersion, bool) {
	return l.versions.Get(size)
}

// Warmup 并发预加载各规格的最新版本；未指定规格时加载全部规格。第一个错误胜出。
func (l *Loader) Warmup(ctx context.Context, sizes ...Size) error {
	if len(sizes) == 0 {
		sizes = Sizes()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, size := range sizes {
		g.Go(func() error {
			_, err := l.Load(gctx, size, "", false)
			return err
		})
	}
	return g.Wait()
}
