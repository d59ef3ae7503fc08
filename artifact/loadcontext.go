package artifact

import (
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/patloader/types"
)

// Stage 加载流水线阶段
type Stage string

const (
	StageInit          Stage = "init"
	StageCacheCheck    Stage = "cache_check"
	StageResolve       Stage = "resolve"
	StageDownload      Stage = "download"
	StageChecksum      Stage = "checksum"
	StageLoad          Stage = "load"
	StageValidate      Stage = "validate"
	StageCacheInsert   Stage = "cache_insert"
	StageRecordVersion Stage = "record_version"
	StageComplete      Stage = "complete"
)

// Source 产物的来源
type Source string

const (
	SourceCache  Source = "cache"
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// VersionLatest 未指定版本时使用的版本标记
const VersionLatest = "latest"

// CacheKey 返回缓存键 "{size}:{version}"，空版本映射为 "latest"
func CacheKey(size Size, version string) string {
	if version == "" {
		version = VersionLatest
	}
	return string(size) + ":" + version
}

// LoadContext 单次加载请求的临时状态，上报给 sink 后即丢弃
type LoadContext struct {
	ID          string
	Size        Size
	Version     string
	ForceReload bool
	Success     bool
	Source      Source
	Stage       Stage
	ErrorCode   types.ErrorCode
	StartedAt   time.Time

	// 阶段变化回调，共享加载时用于让等待方看到当前阶段
	onStage func(Stage)
}

func newLoadContext(size Size, version string, force bool, now time.Time) *LoadContext {
	if version == "" {
		version = VersionLatest
	}
	return &LoadContext{
		ID:          uuid.NewString(),
		Size:        size,
		Version:     version,
		ForceReload: force,
		Stage:       StageInit,
		StartedAt:   now,
	}
}

// Elapsed 返回自请求开始以来的耗时
func (lc *LoadContext) Elapsed(now time.Time) time.Duration {
	return now.Sub(lc.StartedAt)
}

func (lc *LoadContext) enter(stage Stage) {
	lc.Stage = stage
	if lc.onStage != nil {
		lc.onStage(stage)
	}
}

func (lc *LoadContext) fail(err *LoadError) {
	lc.Success = false
	lc.Stage = err.Stage
	lc.ErrorCode = err.Code
}
