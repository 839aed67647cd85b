package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/llmgateway/config"
	"github.com/BaSui01/llmgateway/llm"
)

// huggingface targets the Inference router. Chat-capable deployments
// answer in the OpenAI shape already; text-generation deployments
// return a bare generated_text, from which a single choice is
// synthesized.
type huggingface struct {
	client
}

func newHuggingFace(spec config.ProviderSpec, deps Deps) *huggingface {
	return &huggingface{client: newClient("huggingface", spec, deps)}
}

func (p *huggingface) ChatCompletions(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	apiKey, err := p.apiKey(ctx)
	if err != nil {
		return nil, err
	}

	data, err := p.postChat(ctx, chatCall{
		url:         p.endpoint(req.Model),
		headers:     map[string]string{"Authorization": "Bearer " + apiKey},
		payload:     p.buildPayload(req),
		trackErrors: true,
	})
	if err != nil {
		return nil, err
	}

	return decodeResponse(p.id, p.normalizeResponse(data, req))
}

func (p *huggingface) ValidateAPIKey(ctx context.Context, apiKey string) error {
	probe, err := p.healthRequest(1)
	if err != nil {
		return err
	}
	_, err = p.postChat(ctx, chatCall{
		url:         p.endpoint(probe.Model),
		headers:     map[string]string{"Authorization": "Bearer " + apiKey},
		payload:     p.buildPayload(probe),
		trackErrors: false,
	})
	return err
}

// buildPayload omits the model field: the model id lives in the URL path.
func (p *huggingface) buildPayload(req *llm.ChatCompletionRequest) map[string]any {
	payload := map[string]any{"messages": req.Messages}
	setIfFloat(payload, "temperature", req.Temperature)
	setIfFloat(payload, "top_p", req.TopP)
	setIfInt(payload, "max_tokens", req.MaxTokens)
	setIfBool(payload, "stream", req.Stream)
	return payload
}

func (p *huggingface) normalizeResponse(data map[string]any, req *llm.ChatCompletionRequest) map[string]any {
	choices, _ := data["choices"].([]any)
	if len(choices) == 0 {
		content, _ := data["generated_text"].(string)
		choices = []any{map[string]any{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": firstNonEmptyString(stringField(data, "finish_reason"), "stop"),
		}}
	}

	normalized := map[string]any{
		"id":      firstNonEmptyString(stringField(data, "id"), fmt.Sprintf("chatcmpl-hf-%d", time.Now().UnixMilli())),
		"object":  firstNonEmptyString(stringField(data, "object"), "chat.completion"),
		"created": numberOrDefault(data["created"], time.Now().Unix()),
		"model":   req.Model,
		"choices": choices,
	}
	if usage, ok := data["usage"].(map[string]any); ok && len(usage) > 0 {
		normalized["usage"] = usage
	}
	return normalized
}
