// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 网关指标收集器。所有方法对 nil 接收者安全，
// 便于在禁用指标的测试装配中直接传 nil。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 编排指标
	providerAttemptsTotal  *prometheus.CounterVec
	providerFailoversTotal prometheus.Counter

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到给定 Registerer。
// 测试传入独立的 prometheus.NewRegistry() 避免重复注册冲突。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.providerAttemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Upstream provider attempts by outcome",
		},
		[]string{"provider", "outcome"},
	)

	c.providerFailoversTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failovers_total",
			Help:      "Total number of provider failovers",
		},
	)

	return c
}

// ObserveHTTPRequest 记录一次入站请求。
func (c *Collector) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordProviderAttempt 记录一次上游尝试。outcome: success | failure
func (c *Collector) RecordProviderAttempt(provider, outcome string) {
	if c == nil {
		return
	}
	c.providerAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordFailover 记录一次失败转移。
func (c *Collector) RecordFailover() {
	if c == nil {
		return
	}
	c.providerFailoversTotal.Inc()
}
