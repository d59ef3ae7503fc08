package artifact

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// ArtifactVersion 一次成功加载的版本记录
type ArtifactVersion struct {
	Version   string             `json:"version"`
	LoadedAt  time.Time          `json:"loaded_at"`
	Checksum  string             `json:"checksum"`
	Algorithm Algorithm          `json:"algorithm"`
	Size      Size               `json:"size"`
	Source    Source             `json:"source"`
	Metrics   map[string]float64 `json:"metrics"`
}

// VersionHistory 持久化的版本历史，可选
type VersionHistory interface {
	// Record 追加一条成功加载记录
	Record(ctx context.Context, v ArtifactVersion) error
	// PreviousVersion 返回早于 current 的最新一个不同版本
	PreviousVersion(ctx context.Context, size Size, current string) (string, error)
}

// VersionRegistry 每个规格的当前版本。整体替换，从不合并。
type VersionRegistry struct {
	mu       sync.RWMutex
	versions map[Size]ArtifactVersion
}

// NewVersionRegistry 创建空的版本登记表
func NewVersionRegistry() *VersionRegistry {
	return &VersionRegistry{versions: make(map[Size]ArtifactVersion)}
}

// Get 返回规格的当前版本
func (r *VersionRegistry) Get(size Size) (ArtifactVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.versions[size]
	return v, ok
}

// Set 替换规格的当前版本
func (r *VersionRegistry) Set(v ArtifactVersion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[v.Size] = v
}

// Snapshot 返回 size -> version 的副本
func (r *VersionRegistry) Snapshot() map[Size]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Size]string, len(r.versions))
	for size, v := range r.versions {
		out[size] = v.Version
	}
	return out
}

// PreviousVersion 将版本号末尾的数字减一，保留前缀与零填充宽度。
// "5" -> "4"，"1" -> "0"，"007" -> "006"。末尾无数字或已经为 0 时返回 ErrNoPreviousVersion。
func PreviousVersion(version string) (string, error) {
	end := len(version)
	start := end
	for start > 0 && isDigit(version[start-1]) {
		start--
	}
	if start == end {
		return "", fmt.Errorf("%w: version %q has no numeric suffix", ErrNoPreviousVersion, version)
	}

	digits := version[start:end]
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: version %q: %v", ErrNoPreviousVersion, version, err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: version %q is already the first", ErrNoPreviousVersion, version)
	}

	prev := strconv.FormatUint(n-1, 10)
	if len(digits) > 1 && digits[0] == '0' {
		prev = fmt.Sprintf("%0*d", len(digits), n-1)
	}
	return version[:start] + prev, nil
}
