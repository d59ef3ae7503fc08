package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BaSui01/patloader/artifact"
	"github.com/BaSui01/patloader/artifact/objectstore"
	"github.com/BaSui01/patloader/artifact/weights"
	"github.com/BaSui01/patloader/config"
	"go.uber.org/zap"
)

// =============================================================================
// 📦 load 命令
// =============================================================================

func runLoad(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	sizeName := fs.String("size", "", "Artifact size (small, medium, large)")
	version := fs.String("version", "", "Version to load (default: latest local version)")
	force := fs.Bool("force", false, "Bypass the cache and re-download")
	fallback := fs.Bool("fallback", false, "Load the previous version instead")
	timeout := fs.Duration("timeout", 0, "Load timeout (default: server.load_timeout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	size, err := artifact.ParseSize(*sizeName)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := cliLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := pickTimeout(*timeout, cfg.Server.LoadTimeout); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	stack, err := buildLoaderStack(ctx, cfg, logger, stackOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stack.Close(); cerr != nil {
			logger.Warn("failed to close loader stack", zap.Error(cerr))
		}
	}()

	var a *artifact.Artifact
	if *fallback {
		// fallback 需要当前版本，先加载一次
		if _, err := stack.Loader.Load(ctx, size, *version, false); err != nil {
			return err
		}
		a, err = stack.Loader.FallbackToPrevious(ctx, size)
	} else {
		a, err = stack.Loader.Load(ctx, size, *version, *force)
	}
	if err != nil {
		return err
	}
	return writeJSON(out, a)
}

func pickTimeout(flagValue, configValue time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

// =============================================================================
// 🧪 synth 命令
// =============================================================================

// synthResult synth 命令输出
type synthResult struct {
	Size      artifact.Size      `json:"size"`
	Path      string             `json:"path"`
	Bytes     int                `json:"bytes"`
	Seed      uint64             `json:"seed"`
	Checksum  string             `json:"checksum"`
	Algorithm artifact.Algorithm `json:"algorithm"`
}

func runSynth(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("synth", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	sizeName := fs.String("size", "", "Artifact size (small, medium, large)")
	seed := fs.Uint64("seed", 1, "Random seed")
	outPath := fs.String("out", "", "Output file")
	version := fs.String("version", "", "Write into artifacts.root under this version when --out is empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	size, err := artifact.ParseSize(*sizeName)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	path := *outPath
	if path == "" {
		if *version == "" {
			return errors.New("either --out or --version is required")
		}
		a := cfg.Artifacts
		path = artifact.NewResolver(a.Root, a.Prefix, a.Extension).VersionedPath(size, *version)
	}

	data, err := weights.Synthesize(size.Config(), *seed)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}

	algorithm, err := artifact.ParseAlgorithm(cfg.Artifacts.ChecksumAlgorithm)
	if err != nil {
		return err
	}
	return writeJSON(out, synthResult{
		Size:      size,
		Path:      path,
		Bytes:     len(data),
		Seed:      *seed,
		Checksum:  artifact.NewVerifier(algorithm, nil, nil).Digest(data),
		Algorithm: algorithm,
	})
}

// =============================================================================
// ☁️ publish 命令
// =============================================================================

// publishResult publish 命令输出
type publishResult struct {
	Key             string             `json:"key"`
	Codec           string             `json:"codec"`
	Bytes           int                `json:"bytes"`
	CompressedBytes int                `json:"compressed_bytes"`
	Checksum        string             `json:"checksum"`
	Algorithm       artifact.Algorithm `json:"algorithm"`
}

func runPublish(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	sizeName := fs.String("size", "", "Artifact size (small, medium, large)")
	version := fs.String("version", "", "Version to publish as")
	file := fs.String("file", "", "Artifact file to upload")
	codec := fs.String("codec", "none", "Compression codec (none, zstd, lz4)")
	latest := fs.Bool("latest", false, "Also publish under the latest key")
	if err := fs.Parse(args); err != nil {
		return err
	}

	size, err := artifact.ParseSize(*sizeName)
	if err != nil {
		return err
	}
	if *version == "" || *file == "" {
		return errors.New("--version and --file are required")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *codec != "none" && !cfg.Remote.Decompress {
		return fmt.Errorf("codec %q requires remote.decompress to be enabled", *codec)
	}
	algorithm, err := artifact.ParseAlgorithm(cfg.Artifacts.ChecksumAlgorithm)
	if err != nil {
		return err
	}

	logger := cliLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	// 上传前先确认文件能通过加载自检
	if _, err := (weights.PatchEmbedRuntime{}).Load(size.Config(), data); err != nil {
		return fmt.Errorf("artifact does not load as %s: %w", size, err)
	}
	payload, err := objectstore.Compress(data, *codec)
	if err != nil {
		return err
	}

	store, err := objectstore.New(cfg, logger)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("publish: %w", artifact.ErrNoRemoteStore)
	}
	defer func() { _ = objectstore.Close(store) }()

	up, ok := store.(objectstore.Uploader)
	if !ok {
		return fmt.Errorf("remote backend %q does not support upload", cfg.Remote.Backend)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := artifact.NewFetcher(nil, cfg.Artifacts.Category, cfg.Artifacts.Extension, nil, logger)
	keys := []string{fetcher.RemoteKey(size, *version)}
	if *latest {
		keys = append(keys, fetcher.RemoteKey(size, artifact.VersionLatest))
	}
	for _, key := range keys {
		if err := up.Upload(ctx, key, payload); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		logger.Info("artifact published", zap.String("key", key), zap.Int("bytes", len(payload)))
	}

	return writeJSON(out, publishResult{
		Key:             keys[0],
		Codec:           *codec,
		Bytes:           len(data),
		CompressedBytes: len(payload),
		Checksum:        artifact.NewVerifier(algorithm, nil, nil).Digest(data),
		Algorithm:       algorithm,
	})
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// cliLogger 一次性命令的日志写到 stderr，stdout 只输出结果
func cliLogger(cfg config.LogConfig) *zap.Logger {
	cfg.OutputPaths = []string{"stderr"}
	logger, _ := initLogger(cfg)
	return logger
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
