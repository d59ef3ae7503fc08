// =============================================================================
// 📦 patloader 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("PATLOADER").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 patloader 的完整配置结构
type Config struct {
	// Server 管理 API 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Artifacts 产物加载与缓存配置
	Artifacts ArtifactsConfig `yaml:"artifacts" env:"ARTIFACTS"`

	// Remote 远程对象存储配置
	Remote RemoteConfig `yaml:"remote" env:"REMOTE"`

	// Redis 配置（remote.backend = redis 时使用）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 版本历史数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 单次加载请求超时，0 表示不限制
	LoadTimeout time.Duration `yaml:"load_timeout" env:"LOAD_TIMEOUT"`
	// 限流：每秒请求数
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流：突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// ArtifactsConfig 产物配置
type ArtifactsConfig struct {
	// 本地产物根目录
	Root string `yaml:"root" env:"ROOT"`
	// 文件名前缀: {prefix}_{size}_v{version}.{ext}
	Prefix string `yaml:"prefix" env:"PREFIX"`
	// 文件扩展名
	Extension string `yaml:"extension" env:"EXTENSION"`
	// 远程键中的模型类别: models/{category}/{size}/v{version}.{ext}
	Category string `yaml:"category" env:"CATEGORY"`
	// 缓存过期时间，0 表示永不过期
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	// 合并相同请求的并发加载
	SingleFlight bool `yaml:"single_flight" env:"SINGLE_FLIGHT"`
	// 回退模式: decrement, history
	FallbackMode string `yaml:"fallback_mode" env:"FALLBACK_MODE"`
	// 摘要算法: sha256, blake3
	ChecksumAlgorithm string `yaml:"checksum_algorithm" env:"CHECKSUM_ALGORITHM"`
	// 固定摘要 "{size}:{version}" -> hex，环境变量格式 k=v,k=v
	PinnedChecksums map[string]string `yaml:"pinned_checksums" env:"PINNED_CHECKSUMS"`
	// 是否启用目录热切换
	HotSwap bool `yaml:"hot_swap" env:"HOT_SWAP"`
	// 热切换轮询间隔
	HotSwapInterval time.Duration `yaml:"hot_swap_interval" env:"HOT_SWAP_INTERVAL"`
	// 启动时预加载的规格
	Preload []string `yaml:"preload" env:"PRELOAD"`
	// 每个缓存条目的估算内存（字节）
	EstimatedArtifactBytes int64 `yaml:"estimated_artifact_bytes" env:"ESTIMATED_ARTIFACT_BYTES"`
}

// RemoteConfig 远程对象存储配置
type RemoteConfig struct {
	// 后端类型: none, file, http, redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// HTTP 后端基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// file 后端根目录
	Root string `yaml:"root" env:"ROOT"`
	// redis 后端键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 单次下载超时，0 表示不限制
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 是否自动解压 zstd / lz4 负载
	Decompress bool `yaml:"decompress" env:"DECOMPRESS"`
	// HTTP 后端额外信任的 CA 证书（PEM）
	CAFile string `yaml:"ca_file" env:"CA_FILE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 是否启用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 是否启用版本历史持久化
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "PATLOADER",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}

	case reflect.Map:
		// 支持 k=v,k=v 形式的字符串映射
		if field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		m := make(map[string]string)
		for _, pair := range strings.Split(value, ",") {
			k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || strings.TrimSpace(k) == "" {
				return fmt.Errorf("invalid map entry %q, want key=value", pair)
			}
			m[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		field.Set(reflect.ValueOf(m))
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

var (
	validSizes        = map[string]bool{"small": true, "medium": true, "large": true}
	validFallbackMode = map[string]bool{"decrement": true, "history": true}
	validChecksumAlgo = map[string]bool{"sha256": true, "blake3": true}
	validBackends     = map[string]bool{"": true, "none": true, "file": true, "http": true, "redis": true}
	validDrivers      = map[string]bool{"postgres": true, "mysql": true, "sqlite": true}
	validLogFormats   = map[string]bool{"json": true, "console": true}
)

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 服务器
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		errs = append(errs, "rate limit must not be negative")
	}

	// 产物
	a := c.Artifacts
	if strings.TrimSpace(a.Root) == "" {
		errs = append(errs, "artifacts.root is required")
	}
	if a.CacheTTL < 0 {
		errs = append(errs, "artifacts.cache_ttl must not be negative")
	}
	if !validFallbackMode[a.FallbackMode] {
		errs = append(errs, fmt.Sprintf("unknown artifacts.fallback_mode %q", a.FallbackMode))
	}
	if a.FallbackMode == "history" && !c.Database.Enabled {
		errs = append(errs, "artifacts.fallback_mode history requires database.enabled")
	}
	if !validChecksumAlgo[strings.ToLower(a.ChecksumAlgorithm)] {
		errs = append(errs, fmt.Sprintf("unknown artifacts.checksum_algorithm %q", a.ChecksumAlgorithm))
	}
	if a.HotSwap && a.HotSwapInterval <= 0 {
		errs = append(errs, "artifacts.hot_swap_interval must be positive")
	}
	for _, s := range a.Preload {
		if !validSizes[strings.ToLower(s)] {
			errs = append(errs, fmt.Sprintf("unknown preload size %q", s))
		}
	}

	// 远程存储
	switch r := c.Remote; {
	case !validBackends[r.Backend]:
		errs = append(errs, fmt.Sprintf("unknown remote.backend %q", r.Backend))
	case r.Backend == "http" && r.BaseURL == "":
		errs = append(errs, "remote.base_url is required for http backend")
	case r.Backend == "file" && r.Root == "":
		errs = append(errs, "remote.root is required for file backend")
	case r.Backend == "redis" && c.Redis.Addr == "":
		errs = append(errs, "redis.addr is required for redis backend")
	}

	// 数据库
	if c.Database.Enabled && !validDrivers[c.Database.Driver] {
		errs = append(errs, fmt.Sprintf("unknown database.driver %q", c.Database.Driver))
	}

	// 日志
	if !validLogFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("unknown log.format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
