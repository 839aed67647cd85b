package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHealthHandler_Healthz(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	recorder := httptest.NewRecorder()
	h.HandleHealthz(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
}

func TestHealthHandler_ReadyAllPass(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(HealthCheckFunc{CheckName: "database", Fn: func(ctx context.Context) error { return nil }})
	h.RegisterCheck(HealthCheckFunc{CheckName: "cache", Fn: func(ctx context.Context) error { return nil }})

	recorder := httptest.NewRecorder()
	h.HandleReady(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	require.Len(t, status.Checks, 2)
	assert.Equal(t, "pass", status.Checks["database"].Status)
	assert.NotEmpty(t, status.Checks["database"].Latency)
}

func TestHealthHandler_ReadyFailingCheck(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(HealthCheckFunc{CheckName: "database", Fn: func(ctx context.Context) error { return nil }})
	h.RegisterCheck(HealthCheckFunc{CheckName: "cache", Fn: func(ctx context.Context) error {
		return errors.New("connection refused")
	}})

	recorder := httptest.NewRecorder()
	h.HandleReady(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "fail", status.Checks["cache"].Status)
	assert.Equal(t, "connection refused", status.Checks["cache"].Message)
	assert.Equal(t, "pass", status.Checks["database"].Status, "one failure does not mask other checks")
}

func TestHealthHandler_Version(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	recorder := httptest.NewRecorder()
	h.HandleVersion("1.2.3", "2026-03-14", "abc1234")(recorder, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, "abc1234", body["git_commit"])
}
