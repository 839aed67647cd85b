package providers

import (
	"context"

	"github.com/BaSui01/llmgateway/config"
	"github.com/BaSui01/llmgateway/llm"
)

// cerebras speaks the OpenAI chat-completions dialect natively; the
// adapter is a passthrough that only backfills missing envelope keys.
type cerebras struct {
	client
}

func newCerebras(spec config.ProviderSpec, deps Deps) *cerebras {
	return &cerebras{client: newClient("cerebras", spec, deps)}
}

func (p *cerebras) ChatCompletions(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
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

func (p *cerebras) ValidateAPIKey(ctx context.Context, apiKey string) error {
	probe, err := p.healthRequest(16)
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
