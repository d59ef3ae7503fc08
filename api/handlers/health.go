package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/patloader/artifact"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger    *zap.Logger
	checks    []HealthCheck
	artifacts CurrentVersioner
	mu        sync.RWMutex
}

// CurrentVersioner 报告各规格当前服务的版本，*artifact.Loader 满足该接口
type CurrentVersioner interface {
	CurrentVersion(size artifact.Size) (artifact.ArtifactVersion, bool)
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                   `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version,omitempty"`
	Artifacts map[artifact.Size]string `json:"artifacts,omitempty"`
	Checks    map[string]CheckResult   `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger: logger,
		checks: make([]HealthCheck, 0),
	}
}

// RegisterCheck 注册健康检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// WithArtifacts /health 响应附带各规格当前版本
func (h *HealthHandler) WithArtifacts(v CurrentVersioner) *HealthHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.artifacts = v
	return h
}

func (h *HealthHandler) currentVersions() map[artifact.Size]string {
	h.mu.RLock()
	v := h.artifacts
	h.mu.RUnlock()
	if v == nil {
		return nil
	}
	out := make(map[artifact.Size]string)
	for _, size := range artifact.Sizes() {
		if cur, ok := v.CurrentVersion(size); ok {
			out[size] = cur.Version
		}
	}
	return out
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 请求（简单健康检查）
// @Summary 健康检查
// @Description 简单的健康检查端点
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务正常"
// @Failure 503 {object} HealthStatus "服务不健康"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Artifacts: h.currentVersions(),
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleHealthz 处理 /healthz 请求（Kubernetes 风格）
// @Summary Kubernetes 活跃度探针
// @Description Kubernetes 的活跃度探针
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务处于活动状态"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	// Liveness probe - 只检查服务是否运行
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleReady 处理 /ready 或 /readyz 请求（就绪检查）
// @Summary 准备情况检查
// @Description 检查服务是否准备好接受流量
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务已准备就绪"
// @Failure 503 {object} HealthStatus "服务尚未准备好"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult),
	}

	allHealthy := true
	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{
			Status:  "pass",
			Latency: latency.String(),
		}

		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			allHealthy = false

			h.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}

		status.Checks[check.Name()] = result
	}

	if !allHealthy {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleVersion 处理 /version 请求
// @Summary 版本信息
// @Description 返回版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		}

		WriteSuccess(w, info)
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// FuncCheck 以函数实现的健康检查，用于数据库、Redis 等 ping
type FuncCheck struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncCheck 创建函数健康检查
func NewFuncCheck(name string, fn func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{name: name, fn: fn}
}

func (c *FuncCheck) Name() string {
	return c.name
}

func (c *FuncCheck) Check(ctx context.Context) error {
	return c.fn(ctx)
}

// ArtifactRootCheck 检查制品根目录可读
type ArtifactRootCheck struct {
	root string
}

// NewArtifactRootCheck 创建根目录检查
func NewArtifactRootCheck(root string) *ArtifactRootCheck {
	return &ArtifactRootCheck{root: root}
}

func (c *ArtifactRootCheck) Name() string {
	return "artifact_root"
}

func (c *ArtifactRootCheck) Check(ctx context.Context) error {
	info, err := os.Stat(c.root)
	if err != nil {
		return fmt.Errorf("artifact root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("artifact root %s is not a directory", c.root)
	}
	return nil
}

// PreloadCheck 预加载的规格全部有当前版本后才就绪
type PreloadCheck struct {
	loader CurrentVersioner
	sizes  []artifact.Size
}

// NewPreloadCheck 创建预加载检查
func NewPreloadCheck(loader CurrentVersioner, sizes []artifact.Size) *PreloadCheck {
	return &PreloadCheck{loader: loader, sizes: sizes}
}

func (c *PreloadCheck) Name() string {
	return "preload"
}

func (c *PreloadCheck) Check(ctx context.Context) error {
	var pending []string
	for _, size := range c.sizes {
		if _, ok := c.loader.CurrentVersion(size); !ok {
			pending = append(pending, string(size))
		}
	}
	if len(pending) > 0 {
		return fmt.Errorf("artifacts not loaded yet: %s", strings.Join(pending, ", "))
	}
	return nil
}
