// =============================================================================
// 📦 patloader 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Artifacts: DefaultArtifactsConfig(),
		Remote:    DefaultRemoteConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		LoadTimeout:     10 * time.Minute,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultArtifactsConfig 返回默认产物配置
func DefaultArtifactsConfig() ArtifactsConfig {
	return ArtifactsConfig{
		Root:                   "./models/pat",
		Prefix:                 "artifact",
		Extension:              "bin",
		Category:               "pat",
		CacheTTL:               time.Hour,
		SingleFlight:           true,
		FallbackMode:           "decrement",
		ChecksumAlgorithm:      "sha256",
		PinnedChecksums:        map[string]string{},
		HotSwap:                false,
		HotSwapInterval:        30 * time.Second,
		Preload:                nil,
		EstimatedArtifactBytes: 256 << 20, // 256MB
	}
}

// DefaultRemoteConfig 返回默认远程存储配置
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Backend:    "none",
		KeyPrefix:  "patloader:",
		Timeout:    5 * time.Minute,
		Decompress: true,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "patloader",
		Password:        "",
		Name:            "patloader",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "patloader",
		SampleRate:   0.1,
	}
}
