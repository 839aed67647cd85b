package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/llmgateway/config"
)

func testManagerConfig() Config {
	return Config{
		Addr:            "127.0.0.1:0",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		IdleTimeout:     10 * time.Second,
		ShutdownTimeout: 2 * time.Second,
	}
}

func TestManager_StartServeShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})
	m := NewManager(handler, testManagerConfig(), zap.NewNop())

	require.NoError(t, m.Start())
	addr := m.Addr()
	assert.NotEqual(t, "127.0.0.1:0", addr, "Addr reports the bound port")

	resp, err := http.Get(fmt.Sprintf("http://%s/", addr))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	_, err = http.Get(fmt.Sprintf("http://%s/", addr))
	assert.Error(t, err, "server no longer accepts connections")
}

func TestManager_DoubleStart(t *testing.T) {
	m := NewManager(http.NewServeMux(), testManagerConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	defer m.Shutdown(context.Background())

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestManager_StartAfterClose(t *testing.T) {
	m := NewManager(http.NewServeMux(), testManagerConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	m := NewManager(http.NewServeMux(), testManagerConfig(), zap.NewNop())
	require.NoError(t, m.Start())

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_ListenFailure(t *testing.T) {
	first := NewManager(http.NewServeMux(), testManagerConfig(), zap.NewNop())
	require.NoError(t, first.Start())
	defer first.Shutdown(context.Background())

	cfg := testManagerConfig()
	cfg.Addr = first.Addr() // 端口已占用
	second := NewManager(http.NewServeMux(), cfg, zap.NewNop())
	err := second.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestFromServerConfig(t *testing.T) {
	cfg := config.ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    20 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}

	serverCfg := FromServerConfig(cfg)
	assert.Equal(t, ":8080", serverCfg.Addr)
	assert.Equal(t, 10*time.Second, serverCfg.ReadTimeout)
	assert.Equal(t, 120*time.Second, serverCfg.IdleTimeout)

	metricsCfg := ForMetrics(cfg)
	assert.Equal(t, ":9091", metricsCfg.Addr)
	assert.Equal(t, serverCfg.ShutdownTimeout, metricsCfg.ShutdownTimeout)
}
