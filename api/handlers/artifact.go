package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/patloader/artifact"
	"github.com/BaSui01/patloader/types"
)

// =============================================================================
// 📦 Artifact Handler
// =============================================================================

// ArtifactLoader *artifact.Loader 满足该接口
type ArtifactLoader interface {
	Load(ctx context.Context, size artifact.Size, version string, forceReload bool) (*artifact.Artifact, error)
	FallbackToPrevious(ctx context.Context, size artifact.Size) (*artifact.Artifact, error)
	Metrics() artifact.LoaderMetrics
	ClearCache()
	CurrentVersion(size artifact.Size) (artifact.ArtifactVersion, bool)
	Resolver() *artifact.Resolver
}

// HistoryLister 可选的版本历史查询
type HistoryLister interface {
	List(ctx context.Context, size artifact.Size, limit int) ([]artifact.ArtifactVersion, error)
}

// ArtifactHandler 制品管理 API
type ArtifactHandler struct {
	loader      ArtifactLoader
	history     HistoryLister
	loadTimeout time.Duration
	logger      *zap.Logger
}

// ArtifactInfo 加载结果
type ArtifactInfo struct {
	Size        artifact.Size           `json:"size"`
	Version     string                  `json:"version"`
	Checksum    string                  `json:"checksum"`
	Algorithm   artifact.Algorithm      `json:"algorithm"`
	Source      artifact.Source         `json:"source"`
	LoadedAt    time.Time               `json:"loaded_at"`
	Path        string                  `json:"path"`
	OutputShape []int                   `json:"output_shape"`
	Config      artifact.ArtifactConfig `json:"config"`
}

// SizeInfo 某规格的概况
type SizeInfo struct {
	Size           artifact.Size           `json:"size"`
	Config         artifact.ArtifactConfig `json:"config"`
	CurrentVersion string                  `json:"current_version,omitempty"`
	LocalVersions  []string                `json:"local_versions"`
}

// LoadRequest POST 加载请求体
type LoadRequest struct {
	Version     string `json:"version,omitempty"`
	ForceReload bool   `json:"force_reload,omitempty"`
}

// NewArtifactHandler 创建制品处理器；history 可为 nil
func NewArtifactHandler(loader ArtifactLoader, history HistoryLister, loadTimeout time.Duration, logger *zap.Logger) *ArtifactHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactHandler{
		loader:      loader,
		history:     history,
		loadTimeout: loadTimeout,
		logger:      logger.With(zap.String("component", "artifact_handler")),
	}
}

// Register 注册路由
func (h *ArtifactHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/artifacts", h.HandleListSizes)
	mux.HandleFunc("GET /api/v1/artifacts/{size}", h.HandleLoad)
	mux.HandleFunc("POST /api/v1/artifacts/{size}/load", h.HandleLoad)
	mux.HandleFunc("POST /api/v1/artifacts/{size}/fallback", h.HandleFallback)
	mux.HandleFunc("GET /api/v1/artifacts/{size}/current", h.HandleCurrent)
	mux.HandleFunc("GET /api/v1/artifacts/{size}/history", h.HandleHistory)
	mux.HandleFunc("GET /api/v1/loader/metrics", h.HandleMetrics)
	mux.HandleFunc("DELETE /api/v1/loader/cache", h.HandleClearCache)
}

// =============================================================================
// HTTP Handlers
// =============================================================================

// HandleListSizes 列出所有规格、当前版本与本地版本
// @Summary 规格列表
// @Tags 制品
// @Produce json
// @Router /api/v1/artifacts [get]
func (h *ArtifactHandler) HandleListSizes(w http.ResponseWriter, r *http.Request) {
	resolver := h.loader.Resolver()
	sizes := artifact.Sizes()
	out := make([]SizeInfo, 0, len(sizes))
	for _, s := range sizes {
		info := SizeInfo{
			Size:          s,
			Config:        s.Config(),
			LocalVersions: resolver.Versions(s),
		}
		if info.LocalVersions == nil {
			info.LocalVersions = []string{}
		}
		if v, ok := h.loader.CurrentVersion(s); ok {
			info.CurrentVersion = v.Version
		}
		out = append(out, info)
	}
	WriteSuccess(w, out)
}

// HandleLoad 加载制品。GET 使用 query 参数 version / force，POST 使用 JSON 请求体
// @Summary 加载制品
// @Tags 制品
// @Produce json
// @Router /api/v1/artifacts/{size} [get]
// @Router /api/v1/artifacts/{size}/load [post]
func (h *ArtifactHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	size, ok := h.parseSize(w, r)
	if !ok {
		return
	}

	var req LoadRequest
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
	} else {
		q := r.URL.Query()
		req.Version = q.Get("version")
		if f := q.Get("force"); f != "" {
			force, err := strconv.ParseBool(f)
			if err != nil {
				WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "force must be a boolean", h.logger)
				return
			}
			req.ForceReload = force
		}
	}

	ctx, cancel := h.loadContext(r)
	defer cancel()

	a, err := h.loader.Load(ctx, size, req.Version, req.ForceReload)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, toArtifactInfo(size, a))
}

// HandleFallback 回退到上一版本
// @Summary 回退版本
// @Tags 制品
// @Produce json
// @Router /api/v1/artifacts/{size}/fallback [post]
func (h *ArtifactHandler) HandleFallback(w http.ResponseWriter, r *http.Request) {
	size, ok := h.parseSize(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.loadContext(r)
	defer cancel()

	a, err := h.loader.FallbackToPrevious(ctx, size)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, toArtifactInfo(size, a))
}

// HandleCurrent 返回当前版本
// @Summary 当前版本
// @Tags 制品
// @Produce json
// @Router /api/v1/artifacts/{size}/current [get]
func (h *ArtifactHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	size, ok := h.parseSize(w, r)
	if !ok {
		return
	}
	v, ok := h.loader.CurrentVersion(size)
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrArtifactNotFound, "no version loaded for "+string(size), h.logger)
		return
	}
	WriteSuccess(w, v)
}

// HandleHistory 返回持久化的版本历史
// @Summary 版本历史
// @Tags 制品
// @Produce json
// @Router /api/v1/artifacts/{size}/history [get]
func (h *ArtifactHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	size, ok := h.parseSize(w, r)
	if !ok {
		return
	}
	if h.history == nil {
		WriteErrorMessage(w, http.StatusNotImplemented, types.ErrConfiguration, "version history is not enabled", h.logger)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a positive integer", h.logger)
			return
		}
		limit = n
	}

	versions, err := h.history.List(r.Context(), size, limit)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "failed to query history").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, versions)
}

// HandleMetrics 返回加载统计
// @Summary 加载统计
// @Tags 加载器
// @Produce json
// @Router /api/v1/loader/metrics [get]
func (h *ArtifactHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.loader.Metrics())
}

// HandleClearCache 清空缓存
// @Summary 清空缓存
// @Tags 加载器
// @Produce json
// @Router /api/v1/loader/cache [delete]
func (h *ArtifactHandler) HandleClearCache(w http.ResponseWriter, r *http.Request) {
	h.loader.ClearCache()
	h.logger.Info("artifact cache cleared via API")
	WriteSuccess(w, map[string]bool{"cleared": true})
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func (h *ArtifactHandler) parseSize(w http.ResponseWriter, r *http.Request) (artifact.Size, bool) {
	size, err := artifact.ParseSize(r.PathValue("size"))
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()).WithHTTPStatus(http.StatusBadRequest), h.logger)
		return "", false
	}
	return size, true
}

func (h *ArtifactHandler) loadContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.loadTimeout > 0 {
		return context.WithTimeout(r.Context(), h.loadTimeout)
	}
	return context.WithCancel(r.Context())
}

func toArtifactInfo(size artifact.Size, a *artifact.Artifact) ArtifactInfo {
	return ArtifactInfo{
		Size:        size,
		Version:     a.Version.Version,
		Checksum:    a.Version.Checksum,
		Algorithm:   a.Version.Algorithm,
		Source:      a.Version.Source,
		LoadedAt:    a.Version.LoadedAt,
		Path:        a.Path,
		OutputShape: a.OutputShape,
		Config:      a.Config,
	}
}
