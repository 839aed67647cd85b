package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/llmgateway/api/handlers"
	"github.com/BaSui01/llmgateway/config"
	"github.com/BaSui01/llmgateway/internal/cache"
	"github.com/BaSui01/llmgateway/internal/database"
	"github.com/BaSui01/llmgateway/internal/metrics"
	"github.com/BaSui01/llmgateway/internal/ratelimit"
	"github.com/BaSui01/llmgateway/internal/server"
	"github.com/BaSui01/llmgateway/internal/telemetry"
	"github.com/BaSui01/llmgateway/llm"
	"github.com/BaSui01/llmgateway/llm/providers"
)

// =============================================================================
// 🖥️ Server 装配
// =============================================================================

// Server 网关主服务器：装配存储、注册表、选择器与两个 HTTP 端口。
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db       *gorm.DB
	keyCache *cache.KeyCache

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler *handlers.HealthHandler
	chatHandler   *handlers.ChatHandler
	adminHandler  *handlers.AdminHandler

	metricsCollector *metrics.Collector
}

// NewServer 创建服务器实例。
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Start 启动所有服务。
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("llmgateway", prometheus.DefaultRegisterer, s.logger)

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// initHandlers 打开数据库、迁移表结构并装配编排链路。
func (s *Server) initHandlers() error {
	db, err := database.Open(s.cfg.Database, s.logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	// sqlite 用 AutoMigrate；postgres 的版本化迁移走 migrate 子命令。
	if s.cfg.Database.Driver != "postgres" {
		if err := llm.InitDatabase(db); err != nil {
			return fmt.Errorf("failed to migrate orchestrator tables: %w", err)
		}
		if err := telemetry.InitDatabase(db); err != nil {
			return fmt.Errorf("failed to migrate events table: %w", err)
		}
	}

	credentials := llm.NewCredentialStore(db, s.logger)
	if s.cfg.Redis.Enabled {
		keyCache, cacheErr := cache.NewKeyCache(s.cfg.Redis, s.logger)
		if cacheErr != nil {
			s.logger.Warn("credential cache unavailable, falling back to database reads", zap.Error(cacheErr))
		} else {
			s.keyCache = keyCache
			credentials.UseCache(keyCache)
		}
	}

	traces := llm.NewTraceStore(db, s.logger)
	events := telemetry.NewEventStore(db, s.cfg.Events, s.logger)

	registry := llm.NewRegistry(s.cfg.Providers, providers.Factory(providers.Deps{
		Credentials: credentials,
		Traces:      traces,
		Logger:      s.logger,
	}), credentials)

	selector := llm.NewSelector(registry, events, s.metricsCollector, s.logger)

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.HealthCheckFunc{
		CheckName: "database",
		Fn: func(ctx context.Context) error {
			sqlDB, dbErr := db.DB()
			if dbErr != nil {
				return dbErr
			}
			return sqlDB.PingContext(ctx)
		},
	})

	s.chatHandler = handlers.NewChatHandler(selector, events, s.logger)
	s.adminHandler = handlers.NewAdminHandler(registry, credentials, traces, events, s.logger)

	s.logger.Info("Handlers initialized", zap.Int("providers", len(s.cfg.Providers)))
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// 健康检查与版本
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// OpenAI 兼容 API
	mux.HandleFunc("POST /v1/chat/completions", s.chatHandler.HandleCompletion)

	// 管理端点
	mux.HandleFunc("GET /admin/providers", s.adminHandler.HandleListProviders)
	mux.HandleFunc("GET /admin/events", s.adminHandler.HandleListEvents)
	mux.HandleFunc("POST /admin/providers/{id}/credentials", s.adminHandler.HandleSetCredentials)
	mux.HandleFunc("DELETE /admin/providers/{id}/credentials", s.adminHandler.HandleDeleteCredentials)
	mux.HandleFunc("POST /admin/providers/{id}/healthcheck", s.adminHandler.HandleHealthcheck)
	mux.HandleFunc("GET /admin/providers/{id}/logs", s.adminHandler.HandleProviderLogs)

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
	}
	if s.cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(s.cfg.RateLimit.RPS, s.cfg.RateLimit.Burst)
		middlewares = append(middlewares, RateLimit(limiter, s.logger))
	}
	handler := Chain(mux, middlewares...)

	s.httpManager = server.NewManager(handler, server.FromServerConfig(s.cfg.Server), s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.ForMetrics(s.cfg.Server), s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭。
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务。
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}
	if s.keyCache != nil {
		if err := s.keyCache.Close(); err != nil {
			s.logger.Error("Cache shutdown error", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Database shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
