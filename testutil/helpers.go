// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供产物相关测试共用的辅助函数
//
// 使用方法:
//
//	path := testutil.WriteArtifact(t, root, artifact.SizeSmall, "1.0", 1)
//	ev, ok := testutil.WaitForChannel(events, time.Second)
// =============================================================================
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/patloader/artifact"
	"github.com/BaSui01/patloader/artifact/weights"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 📦 产物辅助
// =============================================================================

// SynthArtifact 生成可通过加载与自检的权重字节
func SynthArtifact(t testing.TB, size artifact.Size, seed uint64) []byte {
	t.Helper()
	data, err := weights.Synthesize(size.Config(), seed)
	if err != nil {
		t.Fatalf("synthesize %s: %v", size, err)
	}
	return data
}

// ArtifactName 返回默认前缀与扩展名下的文件名；version 为空时为无版本文件
func ArtifactName(size artifact.Size, version string) string {
	if version == "" {
		return fmt.Sprintf("%s_%s.%s", artifact.DefaultPrefix, size, artifact.DefaultExtension)
	}
	return fmt.Sprintf("%s_%s_v%s.%s", artifact.DefaultPrefix, size, version, artifact.DefaultExtension)
}

// WriteArtifact 在 root 下写入合成权重文件，返回文件路径
func WriteArtifact(t testing.TB, root string, size artifact.Size, version string, seed uint64) string {
	t.Helper()
	path := filepath.Join(root, ArtifactName(size, version))
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("create artifact root: %v", err)
	}
	if err := os.WriteFile(path, SynthArtifact(t, size, seed), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

// =============================================================================
// ⏳ 异步辅助
// =============================================================================

// WaitForChannel 在超时内从通道读取一个值
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v, ok := <-ch:
		return v, ok
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}
