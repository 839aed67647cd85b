package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/llmgateway/internal/telemetry"
	"github.com/BaSui01/llmgateway/llm"
)

// providerHeader 显式路由覆盖头：只路由到指定提供者，不做失败转移。
const providerHeader = "X-Provider-Id"

// ChatHandler OpenAI 兼容的聊天入口。
type ChatHandler struct {
	selector *llm.Selector
	events   *telemetry.EventStore
	logger   *zap.Logger
}

// NewChatHandler 创建聊天处理器。
func NewChatHandler(selector *llm.Selector, events *telemetry.EventStore, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		selector: selector,
		events:   events,
		logger:   logger.With(zap.String("component", "chat_handler")),
	}
}

// HandleCompletion POST /v1/chat/completions
func (h *ChatHandler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteOpenAIError(w, http.StatusMethodNotAllowed, "Method not allowed", "invalid_request_error", "method_not_allowed")
		return
	}

	var req llm.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteOpenAIError(w, http.StatusBadRequest, "Invalid request body", "invalid_request_error", "invalid_request")
		return
	}
	if len(req.Messages) == 0 {
		WriteOpenAIError(w, http.StatusBadRequest, "messages is required", "invalid_request_error", "invalid_request")
		return
	}

	resp, err := h.selector.ChatCompletions(r.Context(), &req, r.Header.Get(providerHeader))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

// writeError 把选择器错误映射为 OpenAI 形状的响应:
// 凭据类 → 401，其余编排错误 → 429，未分类失败 → 500。
func (h *ChatHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	// 客户端已断开，写响应无意义。
	if errors.Is(err, context.Canceled) {
		return
	}

	if provErr, ok := llm.AsError(err); ok {
		if provErr.IsAuth() {
			WriteOpenAIError(w, http.StatusUnauthorized,
				fmt.Sprintf("Provider '%s' credentials missing", provErr.ProviderID),
				"invalid_request_error", "provider_auth_required")
			return
		}
		WriteOpenAIError(w, http.StatusTooManyRequests,
			fmt.Sprintf("Provider '%s' is unavailable: %s", provErr.ProviderID, provErr.Message),
			"rate_limit_exceeded", "provider_unavailable")
		return
	}

	h.logger.Error("chat completion failed", zap.Error(err))
	if h.events != nil {
		h.events.Record(ctx, telemetry.Event{
			Kind:    telemetry.KindRequestError,
			Level:   telemetry.LevelError,
			Message: err.Error(),
		})
	}
	WriteOpenAIError(w, http.StatusInternalServerError, "Internal server error", "internal_error", "internal_error")
}
