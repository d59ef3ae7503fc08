package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/patloader/artifact"
	"github.com/BaSui01/patloader/artifact/objectstore"
	"github.com/BaSui01/patloader/config"
	"github.com/BaSui01/patloader/types"
)

// testEnv 临时目录下的本地产物根与文件型远程存储
type testEnv struct {
	dir        string
	root       string
	remote     string
	configPath string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:        dir,
		root:       filepath.Join(dir, "models"),
		remote:     filepath.Join(dir, "remote"),
		configPath: filepath.Join(dir, "config.yaml"),
	}
	body := "artifacts:\n" +
		"  root: " + env.root + "\n" +
		"remote:\n" +
		"  backend: file\n" +
		"  root: " + env.remote + "\n" +
		"log:\n" +
		"  level: error\n" +
		"  format: json\n"
	require.NoError(t, os.WriteFile(env.configPath, []byte(body), 0o644))
	return env
}

func TestRunSynth_IntoArtifactRoot(t *testing.T) {
	env := newTestEnv(t)

	var out bytes.Buffer
	err := runSynth([]string{"--config", env.configPath, "--size", "small", "--version", "1.0", "--seed", "7"}, &out)
	require.NoError(t, err)

	var res synthResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, artifact.SizeSmall, res.Size)
	assert.Equal(t, filepath.Join(env.root, "artifact_small_v1.0.bin"), res.Path)
	assert.Equal(t, artifact.AlgorithmSHA256, res.Algorithm)
	assert.Len(t, res.Checksum, 64)
	assert.FileExists(t, res.Path)
}

func TestRunSynth_RequiresDestination(t *testing.T) {
	env := newTestEnv(t)
	err := runSynth([]string{"--config", env.configPath, "--size", "small"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunSynth_UnknownSize(t *testing.T) {
	err := runSynth([]string{"--size", "huge", "--out", filepath.Join(t.TempDir(), "x.bin")}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
}

func TestRunLoad_LocalArtifact(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, runSynth([]string{"--config", env.configPath, "--size", "small", "--version", "1.0"}, &bytes.Buffer{}))
	require.NoError(t, runSynth([]string{"--config", env.configPath, "--size", "small", "--version", "1.1", "--seed", "2"}, &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, runLoad([]string{"--config", env.configPath, "--size", "small"}, &out))

	var a artifact.Artifact
	require.NoError(t, json.Unmarshal(out.Bytes(), &a))
	assert.Equal(t, "1.1", a.Version.Version)
	assert.Equal(t, artifact.SourceLocal, a.Version.Source)
	assert.Equal(t, artifact.SizeSmall.Config().ExpectedOutputShape(), a.OutputShape)
}

func TestRunLoad_Fallback(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, runSynth([]string{"--config", env.configPath, "--size", "small", "--version", "1"}, &bytes.Buffer{}))
	require.NoError(t, runSynth([]string{"--config", env.configPath, "--size", "small", "--version", "2"}, &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, runLoad([]string{"--config", env.configPath, "--size", "small", "--version", "2", "--fallback"}, &out))

	var a artifact.Artifact
	require.NoError(t, json.Unmarshal(out.Bytes(), &a))
	assert.Equal(t, "1", a.Version.Version)
}

func TestRunLoad_MissingEverywhere(t *testing.T) {
	env := newTestEnv(t)
	err := runLoad([]string{"--config", env.configPath, "--size", "small", "--version", "9.9"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, types.ErrArtifactNotFound, types.GetErrorCode(err))
}

func TestRunPublish_ThenLoadFromRemote(t *testing.T) {
	env := newTestEnv(t)
	src := filepath.Join(env.dir, "build", "small.bin")
	require.NoError(t, runSynth([]string{"--config", env.configPath, "--size", "small", "--out", src}, &bytes.Buffer{}))

	var out bytes.Buffer
	err := runPublish([]string{
		"--config", env.configPath, "--size", "small", "--version", "2.0",
		"--file", src, "--codec", "zstd", "--latest",
	}, &out)
	require.NoError(t, err)

	var res publishResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "models/pat/small/v2.0.bin", res.Key)
	assert.Positive(t, res.CompressedBytes)
	assert.Equal(t, "zstd", res.Codec)
	assert.FileExists(t, filepath.Join(env.remote, "models/pat/small/v2.0.bin"))
	assert.FileExists(t, filepath.Join(env.remote, "models/pat/small/vlatest.bin"))

	// 远程对象是压缩的，加载时经解压后应与源文件摘要一致
	var loaded bytes.Buffer
	require.NoError(t, runLoad([]string{"--config", env.configPath, "--size", "small", "--version", "2.0"}, &loaded))
	var a artifact.Artifact
	require.NoError(t, json.Unmarshal(loaded.Bytes(), &a))
	assert.Equal(t, artifact.SourceRemote, a.Version.Source)
	assert.Equal(t, res.Checksum, a.Version.Checksum)
	assert.FileExists(t, filepath.Join(env.root, "artifact_small_v2.0.bin"))
}

func TestRunPublish_RejectsInvalidArtifact(t *testing.T) {
	env := newTestEnv(t)
	src := filepath.Join(env.dir, "garbage.bin")
	require.NoError(t, os.WriteFile(src, []byte("not weights"), 0o644))

	err := runPublish([]string{"--config", env.configPath, "--size", "small", "--version", "1", "--file", src}, &bytes.Buffer{})
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(env.remote, "models/pat/small/v1.bin"))
}

func TestRunPublish_RequiresFlags(t *testing.T) {
	assert.Error(t, runPublish([]string{"--size", "small"}, &bytes.Buffer{}))
}

func TestLoaderOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Artifacts.Root = "/srv/models"
	cfg.Artifacts.SingleFlight = false
	cfg.Artifacts.ChecksumAlgorithm = "BLAKE3"
	cfg.Artifacts.PinnedChecksums = map[string]string{"small:1.0": "abc"}

	opts, err := loaderOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "/srv/models", opts.Root)
	assert.True(t, opts.DisableSingleFlight)
	assert.Equal(t, artifact.AlgorithmBLAKE3, opts.ChecksumAlgorithm)
	assert.Equal(t, artifact.FallbackDecrement, opts.FallbackMode)
	assert.Equal(t, "abc", opts.PinnedChecksums["small:1.0"])
	assert.Equal(t, time.Hour, opts.CacheTTL)
	assert.NotNil(t, opts.Runtime)

	cfg.Artifacts.ChecksumAlgorithm = "md5"
	_, err = loaderOptions(cfg)
	assert.Error(t, err)
}

func TestPreloadSizes(t *testing.T) {
	sizes, err := preloadSizes([]string{"small", " Large "})
	require.NoError(t, err)
	assert.Equal(t, []artifact.Size{artifact.SizeSmall, artifact.SizeLarge}, sizes)

	_, err = preloadSizes([]string{"tiny"})
	assert.Error(t, err)
}

func TestBuildLoaderStack_WithSQLiteHistory(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := loadConfig(env.configPath)
	require.NoError(t, err)
	cfg.Database.Enabled = true
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(env.dir, "history.db")

	stack, err := buildLoaderStack(t.Context(), cfg, cliLogger(cfg.Log), stackOptions{})
	require.NoError(t, err)
	defer func() { assert.NoError(t, stack.Close()) }()

	require.NotNil(t, stack.History)
	_, isCloser := stack.Store.(interface{ Close() error })
	assert.True(t, isCloser)

	src := filepath.Join(env.root, "artifact_small_v3.bin")
	require.NoError(t, runSynth([]string{"--size", "small", "--out", src}, &bytes.Buffer{}))
	_, err = stack.Loader.Load(t.Context(), artifact.SizeSmall, "3", false)
	require.NoError(t, err)

	versions, err := stack.History.Versions(t.Context(), artifact.SizeSmall)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, versions)
}

func TestObjectStoreUploaderThroughWrappers(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := loadConfig(env.configPath)
	require.NoError(t, err)

	store, err := objectstore.New(cfg, nil)
	require.NoError(t, err)
	_, ok := store.(objectstore.Uploader)
	assert.True(t, ok)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestInitLogger_AtomicLevel(t *testing.T) {
	logger, level := initLogger(config.LogConfig{Level: "warn", Format: "console", OutputPaths: []string{"stderr"}})
	require.NotNil(t, logger)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	level.SetLevel(zapcore.DebugLevel)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}
