// Package handlers 实现网关的 HTTP 入口：
// OpenAI 兼容的 /v1/chat/completions、/admin 管理端点与健康检查。
package handlers
