// =============================================================================
// 📦 网关默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Events:    DefaultEventsConfig(),
		RateLimit: DefaultRateLimitConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Providers: DefaultProviders(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
// 默认使用纯 Go SQLite；生产部署切换到 postgres
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "data/orchestrator.db",
		Host:            "localhost",
		Port:            5432,
		User:            "orchestrator",
		Password:        "",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置（凭据缓存默认关闭）
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  false,
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
		TTL:      30 * time.Second,
	}
}

// DefaultEventsConfig 返回默认事件存储配置
// 保留今天 + 昨天两天的事件
func DefaultEventsConfig() EventsConfig {
	return EventsConfig{
		Enabled:       true,
		RetentionDays: 2,
	}
}

// DefaultRateLimitConfig 返回默认限流配置（默认关闭）
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled: false,
		RPS:     50,
		Burst:   100,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "llmgateway",
		SampleRate:   0.1,
	}
}
