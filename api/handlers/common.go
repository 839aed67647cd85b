package handlers

import (
	"encoding/json"
	"net/http"
)

// =============================================================================
// 📦 通用响应辅助
// =============================================================================

// openaiError 是 OpenAI 兼容端点的错误信封。
type openaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 编码失败时响应头已写出，无法补救
	_ = json.NewEncoder(w).Encode(data)
}

// WriteOpenAIError 写入 OpenAI 形状的错误响应。
func WriteOpenAIError(w http.ResponseWriter, status int, message, errType, code string) {
	WriteJSON(w, status, map[string]any{
		"error": openaiError{Message: message, Type: errType, Code: code},
	})
}

// WriteDetail 写入管理端点的 {"detail": ...} 错误响应。
func WriteDetail(w http.ResponseWriter, status int, detail string) {
	WriteJSON(w, status, map[string]any{"detail": detail})
}
