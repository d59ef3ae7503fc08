package artifact_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/patloader/artifact"
	"github.com/BaSui01/patloader/artifact/weights"
	"github.com/BaSui01/patloader/testutil"
	"github.com/BaSui01/patloader/testutil/mocks"
)

func newHotSwapLoader(t *testing.T, root string) *artifact.Loader {
	t.Helper()
	l, err := artifact.NewLoader(artifact.LoaderOptions{
		Root:     root,
		CacheTTL: time.Hour,
		Runtime:  weights.PatchEmbedRuntime{},
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	return l
}

func TestHotSwapWatcher_ScanDetectsNewVersion(t *testing.T) {
	root := t.TempDir()
	testutil.WriteArtifact(t, root, artifact.SizeSmall, "1", 1)

	l := newHotSwapLoader(t, root)
	sink := &mocks.RecordingSink{}
	w := artifact.NewHotSwapWatcher(l, sink, artifact.WithHotSwapSizes(artifact.SizeSmall))

	ctx := testutil.TestContext(t)
	a, err := l.Load(ctx, artifact.SizeSmall, "", false)
	require.NoError(t, err)
	assert.Equal(t, "1", a.Version.Version)

	// 无变化
	assert.Empty(t, w.Scan(ctx))

	testutil.WriteArtifact(t, root, artifact.SizeSmall, "2", 2)
	events := w.Scan(ctx)
	require.Len(t, events, 1)
	assert.Equal(t, artifact.SwapEvent{Size: artifact.SizeSmall, From: "1", To: "2"}, events[0])
	assert.Equal(t, []string{"small:1->2"}, sink.HotSwaps())

	// latest 槽已失效，下一次加载解析到新版本
	a, err = l.Load(ctx, artifact.SizeSmall, "", false)
	require.NoError(t, err)
	assert.Equal(t, "2", a.Version.Version)
}

func TestHotSwapWatcher_Preload(t *testing.T) {
	root := t.TempDir()
	testutil.WriteArtifact(t, root, artifact.SizeMedium, "3", 3)

	l := newHotSwapLoader(t, root)
	w := artifact.NewHotSwapWatcher(l, nil,
		artifact.WithHotSwapSizes(artifact.SizeMedium),
		artifact.WithHotSwapPreload(true),
	)

	ctx := testutil.TestContext(t)
	testutil.WriteArtifact(t, root, artifact.SizeMedium, "4", 4)
	require.Len(t, w.Scan(ctx), 1)

	cur, ok := l.CurrentVersion(artifact.SizeMedium)
	require.True(t, ok)
	assert.Equal(t, "4", cur.Version)

	// 预加载后再扫描不应重复触发
	assert.Empty(t, w.Scan(ctx))

	a, err := l.Load(ctx, artifact.SizeMedium, "", false)
	require.NoError(t, err)
	assert.Equal(t, "4", a.Version.Version)
	assert.Empty(t, w.Scan(ctx))
}

func TestHotSwapWatcher_StartStop(t *testing.T) {
	root := t.TempDir()
	l := newHotSwapLoader(t, root)
	sink := &mocks.RecordingSink{}
	w := artifact.NewHotSwapWatcher(l, sink,
		artifact.WithHotSwapSizes(artifact.SizeLarge),
		artifact.WithHotSwapInterval(10*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	assert.Error(t, w.Start(ctx))

	testutil.WriteArtifact(t, root, artifact.SizeLarge, "1", 1)
	require.Eventually(t, func() bool {
		return len(sink.HotSwaps()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "large:->1", sink.HotSwaps()[0])

	w.Stop()
	w.Stop()
}
