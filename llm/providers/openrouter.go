package providers

import (
	"context"

	"github.com/BaSui01/llmgateway/config"
	"github.com/BaSui01/llmgateway/llm"
)

// openrouter is OpenAI-compatible end to end.
type openrouter struct {
	client
}

func newOpenRouter(spec config.ProviderSpec, deps Deps) *openrouter {
	return &openrouter{client: newClient("openrouter", spec, deps)}
}

func (p *openrouter) ChatCompletions(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	apiKey, err := p.apiKey(ctx)
	if err != nil {
		return nil, err
	}

	data, err := p.postChat(ctx, chatCall{
		url:         p.endpoint(req.Model),
		headers:     map[string]string{"Authorization": "Bearer " + apiKey},
		payload:     openaiPayload(req),
		trackErrors: true,
	})
	if err != nil {
		return nil, err
	}

	ensureOpenAIDefaults(data, req.Model)
	return decodeResponse(p.id, data)
}

func (p *openrouter) ValidateAPIKey(ctx context.Context, apiKey string) error {
	probe, err := p.healthRequest(1)
	if err != nil {
		return err
	}
	_, err = p.postChat(ctx, chatCall{
		url:         p.endpoint(probe.Model),
		headers:     map[string]string{"Authorization": "Bearer " + apiKey},
		payload:     openaiPayload(probe),
		trackErrors: false,
	})
	return err
}
