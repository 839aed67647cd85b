// llmgateway 是 OpenAI 兼容的多提供者 LLM 网关服务。
//
// 对外暴露 /v1/chat/completions，按优先级在 Cerebras、Cohere、
// Gemini、OpenRouter、Hugging Face 之间路由并失败转移；
// /admin 下提供凭据管理、健康检查与事件查询。
package main
