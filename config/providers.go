package config

// ProviderSpec 描述一个上游 LLM 提供者的路由配置。
// priority 越小越先被选中；同 priority 按配置顺序。
type ProviderSpec struct {
	// ID 提供者唯一标识（与适配器表中的 id 对应）
	ID string `yaml:"id"`
	// Name 展示名称
	Name string `yaml:"name"`
	// Priority 路由优先级，越小越靠前
	Priority int `yaml:"priority"`
	// BaseURL 上游 API 根地址
	BaseURL string `yaml:"base_url"`
	// ChatCompletionsPath 聊天端点路径，可包含 {model} / {model_id} 占位符
	ChatCompletionsPath string `yaml:"chat_completions_path"`
	// Models 模型映射，约定包含 "default" 条目
	Models map[string]string `yaml:"models"`
	// Availability 不透明的可用性子配置
	Availability map[string]any `yaml:"availability"`
	// Credentials 不透明的凭据子配置
	Credentials map[string]any `yaml:"credentials"`
}

// DefaultModel 返回 models["default"]，未配置时为空串。
func (p ProviderSpec) DefaultModel() string {
	return p.Models["default"]
}

// DefaultProviders 返回五个内置提供者的出厂配置。
// YAML 中出现 providers 段时会整体覆盖。
func DefaultProviders() []ProviderSpec {
	return []ProviderSpec{
		{
			ID:                  "cerebras",
			Name:                "Cerebras",
			Priority:            10,
			BaseURL:             "https://api.cerebras.ai",
			ChatCompletionsPath: "/v1/chat/completions",
			Models:              map[string]string{"default": "llama3.1-8b"},
		},
		{
			ID:                  "cohere",
			Name:                "Cohere",
			Priority:            20,
			BaseURL:             "https://api.cohere.com",
			ChatCompletionsPath: "/v2/chat",
			Models:              map[string]string{"default": "command-r7b-12-2024"},
		},
		{
			ID:                  "gemini",
			Name:                "Google Gemini",
			Priority:            30,
			BaseURL:             "https://generativelanguage.googleapis.com",
			ChatCompletionsPath: "/v1beta/models/{model}:generateContent",
			Models:              map[string]string{"default": "gemini-2.5-flash"},
		},
		{
			ID:                  "openrouter",
			Name:                "OpenRouter",
			Priority:            40,
			BaseURL:             "https://openrouter.ai/api",
			ChatCompletionsPath: "/v1/chat/completions",
			Models:              map[string]string{"default": "meta-llama/llama-3.3-70b-instruct:free"},
		},
		{
			ID:                  "huggingface",
			Name:                "Hugging Face Inference",
			Priority:            50,
			BaseURL:             "https://router.huggingface.co",
			ChatCompletionsPath: "/hf-inference/models/{model_id}/v1/chat/completions",
			Models:              map[string]string{"default": "meta-llama/Llama-3.1-8B-Instruct"},
		},
	}
}
