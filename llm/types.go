package llm

import "context"

// ChatCompletionRequest 是 OpenAI 形状的归一化请求。
// messages 的 content 既可能是字符串也可能是分段列表，
// 因此消息保持为松散的 JSON 对象，由各适配器防御性提取。
type ChatCompletionRequest struct {
	Model            string           `json:"model"`
	Messages         []map[string]any `json:"messages"`
	Temperature      *float64         `json:"temperature,omitempty"`
	MaxTokens        *int             `json:"max_tokens,omitempty"`
	Stream           *bool            `json:"stream,omitempty"`
	User             *string          `json:"user,omitempty"`
	PresencePenalty  *float64         `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64         `json:"frequency_penalty,omitempty"`
	TopP             *float64         `json:"top_p,omitempty"`
}

// WithModel 返回替换了 model 的浅拷贝；消息切片共享。
func (r *ChatCompletionRequest) WithModel(model string) *ChatCompletionRequest {
	clone := *r
	clone.Model = model
	return &clone
}

// ChatCompletionResponse 是 OpenAI 形状的归一化响应。
// choices 与 usage 同样保持松散对象，原样回传给客户端。
type ChatCompletionResponse struct {
	ID      string           `json:"id"`
	Object  string           `json:"object"`
	Created int64            `json:"created"`
	Model   string           `json:"model"`
	Choices []map[string]any `json:"choices"`
	Usage   map[string]any   `json:"usage,omitempty"`
}

// Adapter 是每个上游提供者必须实现的统一契约。
//
// ChatCompletions 对上游发起一次尝试：成功时返回归一化响应并清除
// 凭据错误；失败时记录凭据错误状态、写入调用痕迹并按 ErrorKind
// 分类返回。ValidateAPIKey 用给定的 key 发起厂商允许的最廉价探活
// 调用，不得改写凭据状态、也不得写入痕迹。
type Adapter interface {
	ProviderID() string
	ChatCompletions(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)
	ValidateAPIKey(ctx context.Context, apiKey string) error
}
