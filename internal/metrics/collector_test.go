package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("llmgateway", reg, zap.NewNop())
	require.NotNil(t, c)

	c.ObserveHTTPRequest("POST", "/v1/chat/completions", 200, 120*time.Millisecond)
	c.RecordProviderAttempt("cerebras", "failure")
	c.RecordProviderAttempt("cohere", "success")
	c.RecordFailover()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["llmgateway_http_requests_total"])
	assert.True(t, names["llmgateway_http_request_duration_seconds"])
	assert.True(t, names["llmgateway_provider_attempts_total"])
	assert.True(t, names["llmgateway_provider_failovers_total"])
}

func TestCollector_CounterValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("llmgateway", reg, zap.NewNop())

	c.RecordProviderAttempt("cerebras", "failure")
	c.RecordProviderAttempt("cerebras", "failure")
	c.RecordProviderAttempt("cerebras", "success")
	c.RecordFailover()

	assert.Equal(t, float64(2), testutil.ToFloat64(c.providerAttemptsTotal.WithLabelValues("cerebras", "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.providerAttemptsTotal.WithLabelValues("cerebras", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.providerFailoversTotal))
}

func TestCollector_HTTPLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("llmgateway", reg, zap.NewNop())

	c.ObserveHTTPRequest("GET", "/admin/providers", 200, 5*time.Millisecond)
	c.ObserveHTTPRequest("GET", "/admin/providers", 200, 7*time.Millisecond)
	c.ObserveHTTPRequest("GET", "/admin/providers", 500, time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/admin/providers", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/admin/providers", "500")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.httpRequestDuration))
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveHTTPRequest("GET", "/healthz", 200, time.Millisecond)
		c.RecordProviderAttempt("cerebras", "success")
		c.RecordFailover()
	})
}
