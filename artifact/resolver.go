package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Resolver 将 (规格, 版本) 映射为本地文件路径。
//
// 命名约定：{root}/{prefix}_{size}_v{version}.{ext}；无版本文件时为 {root}/{prefix}_{size}.{ext}。
type Resolver struct {
	root   string
	prefix string
	ext    string
}

// Resolution 解析结果
type Resolution struct {
	// Path 本地文件路径，可能不存在
	Path string
	// Version 具体版本号；回退到无版本文件名时为空
	Version string
	// Versioned 路径是否为带版本的文件名
	Versioned bool
}

// NewResolver 创建版本解析器
func NewResolver(root, prefix, ext string) *Resolver {
	return &Resolver{
		root:   root,
		prefix: prefix,
		ext:    strings.TrimPrefix(ext, "."),
	}
}

// Root 返回产物根目录
func (r *Resolver) Root() string {
	return r.root
}

// Resolve 解析路径。指定版本时路径是确定的；未指定时扫描目录选取最大版本。
// 从不返回错误：无匹配时得到一个不存在的默认路径，由下游按"缺失"处理。
func (r *Resolver) Resolve(size Size, version string) Resolution {
	if version != "" {
		return Resolution{
			Path:      r.VersionedPath(size, version),
			Version:   version,
			Versioned: true,
		}
	}

	if latest, ok := r.LatestVersion(size); ok {
		return Resolution{
			Path:      r.VersionedPath(size, latest),
			Version:   latest,
			Versioned: true,
		}
	}

	return Resolution{Path: r.DefaultPath(size)}
}

// VersionedPath 返回指定版本的文件路径
func (r *Resolver) VersionedPath(size Size, version string) string {
	return filepath.Join(r.root, r.versionedPrefix(size)+version+r.suffix())
}

// ValidateVersion 检查版本号能否安全地拼入文件名与对象键。
// 拒绝路径分隔符、".." 与 NUL；空串表示 latest，视为合法。
func ValidateVersion(version string) error {
	if version == "" {
		return nil
	}
	if strings.ContainsAny(version, "/\\\x00") || strings.Contains(version, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	return nil
}

// DefaultPath 返回无版本的默认文件路径
func (r *Resolver) DefaultPath(size Size) string {
	return filepath.Join(r.root, r.prefix+"_"+string(size)+r.suffix())
}

// Versions 返回本地已有的全部版本号，按自然顺序升序排列
func (r *Resolver) Versions(size Size) []string {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil
	}

	head := r.versionedPrefix(size)
	tail := r.suffix()

	var versions []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, head) || !strings.HasSuffix(name, tail) {
			continue
		}
		token := name[len(head) : len(name)-len(tail)]
		if token == "" {
			continue
		}
		versions = append(versions, token)
	}

	sort.Slice(versions, func(i, j int) bool {
		return CompareVersions(versions[i], versions[j]) < 0
	})
	return versions
}

// LatestVersion 返回本地最大版本号
func (r *Resolver) LatestVersion(size Size) (string, bool) {
	versions := r.Versions(size)
	if len(versions) == 0 {
		return "", false
	}
	return versions[len(versions)-1], true
}

func (r *Resolver) versionedPrefix(size Size) string {
	return r.prefix + "_" + string(size) + "_v"
}

func (r *Resolver) suffix() string {
	if r.ext == "" {
		return ""
	}
	return "." + r.ext
}

// CompareVersions 自然顺序比较版本号：数字段按数值比较，其余按字典序。
// 因此 "10" > "2"，"1.10" > "1.9"。返回 -1、0 或 1。
func CompareVersions(a, b string) int {
	as, bs := splitVersion(a), splitVersion(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return strings.Compare(a, b)
}

// splitVersion 按数字/非数字切分
func splitVersion(v string) []string {
	var segments []string
	start := 0
	for i := 1; i <= len(v); i++ {
		if i == len(v) || isDigit(v[i]) != isDigit(v[start]) {
			segments = append(segments, v[start:i])
			start = i
		}
	}
	return segments
}

func compareSegment(a, b string) int {
	if isDigit(a[0]) && isDigit(b[0]) {
		a = strings.TrimLeft(a, "0")
		b = strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			if len(a) < len(b) {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
