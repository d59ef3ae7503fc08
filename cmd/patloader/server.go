package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/BaSui01/patloader/api/handlers"
	"github.com/BaSui01/patloader/artifact"
	"github.com/BaSui01/patloader/config"
	"github.com/BaSui01/patloader/internal/metrics"
	"github.com/BaSui01/patloader/internal/server"
	"github.com/BaSui01/patloader/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 patloader 的管理服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	logLevel   zap.AtomicLevel

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 加载器栈
	stack    *loaderStack
	hub      *artifact.ProgressHub
	sink     artifact.MultiSink
	hotSwap  *artifact.HotSwapWatcher
	reloader *config.Reloader
	otel     *telemetry.Providers

	// Handlers
	healthHandler   *handlers.HealthHandler
	artifactHandler *handlers.ArtifactHandler
	progressHandler *handlers.ProgressHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 后台 goroutine 生命周期
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		logLevel:   level,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 遥测
	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
		providers = &telemetry.Providers{}
	}
	s.otel = providers

	// 2. 指标收集器
	s.metricsCollector = metrics.NewCollector("patloader", s.logger)

	// 3. 加载器
	if err := s.initLoader(); err != nil {
		return fmt.Errorf("failed to init loader: %w", err)
	}

	// 4. Handlers
	s.initHandlers()

	// 5. 热替换与配置重载
	if err := s.startWatchers(); err != nil {
		return fmt.Errorf("failed to start watchers: %w", err)
	}

	// 6. HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 7. Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 8. 预加载在后台进行，不阻塞端口就绪
	s.preload()

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_swap_enabled", s.hotSwap != nil),
		zap.Bool("config_reload_enabled", s.reloader != nil),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initLoader 组装 sink 链与加载器栈
func (s *Server) initLoader() error {
	s.hub = artifact.NewProgressHub(64)

	sinks := artifact.MultiSink{s.metricsCollector, s.hub}
	meterSink, err := s.otel.MeterSink()
	if err != nil {
		s.logger.Warn("otel meter sink unavailable", zap.Error(err))
	} else {
		sinks = append(sinks, meterSink)
	}

	s.sink = sinks

	stack, err := buildLoaderStack(s.ctx, s.cfg, s.logger, stackOptions{
		Sink:   sinks,
		Tracer: s.otel.Tracer(),
	})
	if err != nil {
		return err
	}
	s.stack = stack

	s.logger.Info("Loader initialized",
		zap.String("root", s.cfg.Artifacts.Root),
		zap.String("remote_backend", s.cfg.Remote.Backend),
		zap.Bool("history_enabled", stack.History != nil),
		zap.String("fallback_mode", s.cfg.Artifacts.FallbackMode),
	)
	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger).WithArtifacts(s.stack.Loader)
	s.healthHandler.RegisterCheck(handlers.NewArtifactRootCheck(s.cfg.Artifacts.Root))
	if sizes, err := preloadSizes(s.cfg.Artifacts.Preload); err == nil && len(sizes) > 0 {
		s.healthHandler.RegisterCheck(handlers.NewPreloadCheck(s.stack.Loader, sizes))
	}
	if s.stack.History != nil {
		db := s.stack.db
		s.healthHandler.RegisterCheck(handlers.NewFuncCheck("database", func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}))
	}

	var lister handlers.HistoryLister
	if s.stack.History != nil {
		lister = s.stack.History
	}
	s.artifactHandler = handlers.NewArtifactHandler(s.stack.Loader, lister, s.cfg.Server.LoadTimeout, s.logger)
	s.progressHandler = handlers.NewProgressHandler(s.hub, s.logger)

	s.logger.Info("Handlers initialized")
}

// startWatchers 启动产物热替换与配置文件重载
func (s *Server) startWatchers() error {
	a := s.cfg.Artifacts
	if a.HotSwap {
		s.hotSwap = artifact.NewHotSwapWatcher(s.stack.Loader, s.sink,
			artifact.WithHotSwapInterval(a.HotSwapInterval),
			artifact.WithHotSwapPreload(true),
			artifact.WithHotSwapLogger(s.logger),
		)
		if err := s.hotSwap.Start(s.ctx); err != nil {
			return err
		}
	}

	if s.configPath == "" {
		return nil
	}
	reloader, err := config.NewReloader(s.configPath, s.cfg, config.WithReloaderLogger(s.logger))
	if err != nil {
		return err
	}
	reloader.OnReload(s.applyConfig)
	if err := reloader.Start(s.ctx); err != nil {
		return err
	}
	s.reloader = reloader
	return nil
}

// applyConfig 应用可在运行期生效的配置项，其余变更需要重启
func (s *Server) applyConfig(oldConfig, newConfig *config.Config) {
	if oldConfig.Log.Level != newConfig.Log.Level {
		s.logLevel.SetLevel(parseLevel(newConfig.Log.Level))
		s.logger.Info("Log level changed",
			zap.String("from", oldConfig.Log.Level),
			zap.String("to", newConfig.Log.Level))
	}
	if oldConfig.Artifacts.Root != newConfig.Artifacts.Root ||
		oldConfig.Remote.Backend != newConfig.Remote.Backend ||
		oldConfig.Server.HTTPPort != newConfig.Server.HTTPPort {
		s.logger.Warn("Configuration change requires restart to take effect")
	}
}

// preload 后台预加载配置的规格
func (s *Server) preload() {
	if len(s.cfg.Artifacts.Preload) == 0 {
		return
	}
	sizes, err := preloadSizes(s.cfg.Artifacts.Preload)
	if err != nil {
		s.logger.Warn("Invalid preload sizes", zap.Error(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := s.ctx
		if s.cfg.Server.LoadTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.Server.LoadTimeout)
			defer cancel()
		}
		if err := s.stack.Loader.Warmup(ctx, sizes...); err != nil {
			s.logger.Warn("Artifact preload failed", zap.Error(err))
			return
		}
		s.logger.Info("Artifacts preloaded", zap.Int("count", len(sizes)))
	}()
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 构建路由与中间件链
func (s *Server) routes(limiterCtx context.Context) http.Handler {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// API 路由
	s.artifactHandler.Register(mux)
	s.progressHandler.Register(mux)

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		RateLimiter(limiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	handler := s.routes(s.ctx)

	serverConfig := server.FromServerConfig(s.cfg.Server, s.cfg.Server.HTTPPort)
	s.httpManager = server.NewManager("api", handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.Addr()))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器；端口为 0 时不启动
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.FromServerConfig(s.cfg.Server, s.cfg.Server.MetricsPort)
	s.metricsManager = server.NewManager("metrics", mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.String("addr", s.metricsManager.Addr()))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown(s.ctx)
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 通知后台 goroutine 退出（限流清理、预加载）
	s.cancel()

	// 1. 停止热替换与配置重载
	if s.hotSwap != nil {
		s.hotSwap.Stop()
	}
	if s.reloader != nil {
		s.reloader.Stop()
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 等待所有 goroutine 完成
	s.wg.Wait()

	// 5. 释放存储、数据库与遥测
	if s.stack != nil {
		if err := s.stack.Close(); err != nil {
			s.logger.Error("Loader stack close error", zap.Error(err))
		}
	}
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
