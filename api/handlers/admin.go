package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/llmgateway/internal/telemetry"
	"github.com/BaSui01/llmgateway/llm"
)

// =============================================================================
// 🛠️ 管理端点
// =============================================================================

// AdminHandler 提供者凭据与健康检查的管理入口。
type AdminHandler struct {
	registry    *llm.Registry
	credentials *llm.CredentialStore
	traces      *llm.TraceStore
	events      *telemetry.EventStore
	logger      *zap.Logger
}

// NewAdminHandler 创建管理处理器。traces 与 events 可为 nil。
func NewAdminHandler(registry *llm.Registry, credentials *llm.CredentialStore, traces *llm.TraceStore, events *telemetry.EventStore, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		registry:    registry,
		credentials: credentials,
		traces:      traces,
		events:      events,
		logger:      logger.With(zap.String("component", "admin_handler")),
	}
}

// providerView 管理面板的提供者状态视图。
type providerView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Priority    int     `json:"priority"`
	HasAPIKey   bool    `json:"has_api_key"`
	LastError   *string `json:"last_error"`
	LastErrorAt *string `json:"last_error_at"`
}

// HandleListProviders GET /admin/providers
func (h *AdminHandler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	states, err := h.registry.States(r.Context())
	if err != nil {
		h.logger.Error("failed to list provider states", zap.Error(err))
		WriteDetail(w, http.StatusInternalServerError, "Failed to list providers")
		return
	}

	views := make([]providerView, 0, len(states))
	for _, state := range states {
		view := providerView{
			ID:        state.Provider.ID,
			Name:      state.Provider.Name,
			Priority:  state.Provider.Priority,
			HasAPIKey: state.HasAPIKey(),
		}
		if state.Credential != nil {
			view.LastError = state.Credential.LastError
			if state.Credential.LastErrorAt != nil {
				iso := state.Credential.LastErrorAt.Format(time.RFC3339Nano)
				view.LastErrorAt = &iso
			}
		}
		views = append(views, view)
	}

	WriteJSON(w, http.StatusOK, map[string]any{"providers": views})
}

// HandleListEvents GET /admin/events?limit=N
func (h *AdminHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	events, err := h.events.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list events", zap.Error(err))
		WriteDetail(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

// HandleSetCredentials POST /admin/providers/{id}/credentials
//
// 保存前先用新 key 做一次真实探活:无效 key 拒绝并标记凭据错误,
// 上游不可用则拒绝但不碰既有凭据。
func (h *AdminHandler) HandleSetCredentials(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("id")

	var body struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.APIKey == "" {
		WriteDetail(w, http.StatusBadRequest, "Missing api_key")
		return
	}

	spec, ok := h.registry.Provider(providerID)
	if !ok {
		WriteDetail(w, http.StatusNotFound, "Provider not configured")
		return
	}

	adapter, err := h.registry.Adapter(spec)
	if err != nil {
		WriteDetail(w, http.StatusNotFound, "Provider not configured")
		return
	}

	if err := adapter.ValidateAPIKey(r.Context(), body.APIKey); err != nil {
		provErr, _ := llm.AsError(err)
		if provErr != nil && provErr.IsAuth() {
			if recErr := h.credentials.RecordError(r.Context(), providerID, "auth"); recErr != nil {
				h.logger.Warn("failed to record credential error", zap.Error(recErr))
			}
			h.emit(r, telemetry.Event{
				Kind:         telemetry.KindProviderCredentialsInvalid,
				Level:        telemetry.LevelWarning,
				ProviderFrom: providerID,
				Message:      "Credential validation failed: invalid API key",
				Meta:         map[string]any{"source": "admin_credentials"},
			})
			WriteDetail(w, http.StatusBadRequest, "Invalid API key")
			return
		}

		message := err.Error()
		h.emit(r, telemetry.Event{
			Kind:         telemetry.KindProviderHealthFail,
			Level:        telemetry.LevelWarning,
			ProviderFrom: providerID,
			Message:      message,
			Meta:         map[string]any{"source": "admin_credentials"},
		})
		WriteDetail(w, http.StatusServiceUnavailable, fmt.Sprintf("Provider health check failed: %s", message))
		return
	}

	if err := h.credentials.Upsert(r.Context(), providerID, body.APIKey); err != nil {
		h.logger.Error("failed to store credential", zap.String("provider", providerID), zap.Error(err))
		WriteDetail(w, http.StatusInternalServerError, "Failed to store credential")
		return
	}

	h.emit(r, telemetry.Event{
		Kind:         telemetry.KindProviderCredentialsUpdated,
		Level:        telemetry.LevelInfo,
		ProviderFrom: providerID,
		Message:      "API key saved via admin",
		Meta:         map[string]any{"source": "admin_credentials"},
	})
	WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// HandleHealthcheck POST /admin/providers/{id}/healthcheck
func (h *AdminHandler) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("id")

	spec, ok := h.registry.Provider(providerID)
	if !ok {
		WriteDetail(w, http.StatusNotFound, "Provider not configured")
		return
	}

	apiKey, err := h.credentials.APIKey(r.Context(), providerID)
	if err != nil {
		h.logger.Error("failed to read credential", zap.String("provider", providerID), zap.Error(err))
		WriteDetail(w, http.StatusInternalServerError, "Failed to read credential")
		return
	}
	if apiKey == "" {
		WriteDetail(w, http.StatusBadRequest, "Provider API key not configured")
		return
	}

	adapter, err := h.registry.Adapter(spec)
	if err != nil {
		WriteDetail(w, http.StatusNotFound, "Provider not configured")
		return
	}

	if err := adapter.ValidateAPIKey(r.Context(), apiKey); err != nil {
		provErr, _ := llm.AsError(err)
		if provErr != nil && provErr.IsAuth() {
			if recErr := h.credentials.RecordError(r.Context(), providerID, "auth"); recErr != nil {
				h.logger.Warn("failed to record credential error", zap.Error(recErr))
			}
			h.emit(r, telemetry.Event{
				Kind:         telemetry.KindProviderHealthFail,
				Level:        telemetry.LevelWarning,
				ProviderFrom: providerID,
				Message:      "Health check failed: invalid API key",
				Meta:         map[string]any{"source": "admin_healthcheck"},
			})
			WriteDetail(w, http.StatusBadRequest, "Invalid API key")
			return
		}

		message := err.Error()
		code := message
		if code == "" {
			code = "provider_unavailable"
		}
		if recErr := h.credentials.RecordError(r.Context(), providerID, code); recErr != nil {
			h.logger.Warn("failed to record credential error", zap.Error(recErr))
		}
		h.emit(r, telemetry.Event{
			Kind:         telemetry.KindProviderHealthFail,
			Level:        telemetry.LevelWarning,
			ProviderFrom: providerID,
			Message:      message,
			Meta:         map[string]any{"source": "admin_healthcheck"},
		})
		WriteDetail(w, http.StatusServiceUnavailable, fmt.Sprintf("Provider health check failed: %s", message))
		return
	}

	if err := h.credentials.ClearError(r.Context(), providerID); err != nil {
		h.logger.Warn("failed to clear credential error", zap.Error(err))
	}
	h.emit(r, telemetry.Event{
		Kind:         telemetry.KindProviderHealthOK,
		Level:        telemetry.LevelInfo,
		ProviderFrom: providerID,
		Message:      "Health check succeeded",
		Meta:         map[string]any{"source": "admin_healthcheck"},
	})
	WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// HandleDeleteCredentials DELETE /admin/providers/{id}/credentials
func (h *AdminHandler) HandleDeleteCredentials(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("id")

	removed, err := h.credentials.Delete(r.Context(), providerID)
	if err != nil {
		h.logger.Error("failed to delete credential", zap.String("provider", providerID), zap.Error(err))
		WriteDetail(w, http.StatusInternalServerError, "Failed to delete credential")
		return
	}
	if !removed {
		WriteDetail(w, http.StatusNotFound, "Provider credential not found")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// HandleProviderLogs GET /admin/providers/{id}/logs
func (h *AdminHandler) HandleProviderLogs(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("id")

	spec, ok := h.registry.Provider(providerID)
	if !ok {
		WriteDetail(w, http.StatusNotFound, "Provider not configured")
		return
	}

	logs, err := h.traces.List(r.Context(), providerID, 0)
	if err != nil {
		h.logger.Error("failed to list provider logs", zap.String("provider", providerID), zap.Error(err))
		WriteDetail(w, http.StatusInternalServerError, "Failed to list provider logs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"provider": map[string]any{"id": spec.ID, "name": spec.Name},
		"logs":     logs,
	})
}

func (h *AdminHandler) emit(r *http.Request, ev telemetry.Event) {
	if h.events == nil {
		return
	}
	h.events.Record(r.Context(), ev)
}
