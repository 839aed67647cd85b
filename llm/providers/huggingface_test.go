package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/llmgateway/llm"
)

func newHuggingFaceForTest(baseURL string) *huggingface {
	spec := testSpec("huggingface", baseURL)
	spec.ChatCompletionsPath = "/hf-inference/models/{model_id}/v1/chat/completions"
	return newHuggingFace(spec, Deps{})
}

func TestHuggingFace_BuildPayloadOmitsModel(t *testing.T) {
	p := newHuggingFaceForTest("http://api.test")
	temperature := 0.3
	req := &llm.ChatCompletionRequest{
		Model:       "meta-llama/Llama-3.2-1B-Instruct",
		Messages:    []map[string]any{{"role": "user", "content": "hi"}},
		Temperature: &temperature,
	}

	payload := p.buildPayload(req)
	// 模型在 URL 路径里,载荷不重复携带
	assert.NotContains(t, payload, "model")
	assert.Equal(t, 0.3, payload["temperature"])
	assert.Equal(t, req.Messages, payload["messages"])
}

func TestHuggingFace_NormalizeResponse(t *testing.T) {
	p := newHuggingFaceForTest("http://api.test")
	req := &llm.ChatCompletionRequest{Model: "meta-llama/Llama-3.2-1B-Instruct"}

	t.Run("openai-shaped choices pass through", func(t *testing.T) {
		data := map[string]any{
			"id": "hf-1",
			"choices": []any{
				map[string]any{"index": float64(0), "message": map[string]any{"role": "assistant", "content": "yo"}},
			},
		}
		got := p.normalizeResponse(data, req)
		assert.Equal(t, "hf-1", got["id"])
		assert.Equal(t, "meta-llama/Llama-3.2-1B-Instruct", got["model"])
		assert.Len(t, got["choices"], 1)
	})

	t.Run("generated_text synthesized into a choice", func(t *testing.T) {
		data := map[string]any{"generated_text": "raw completion"}
		got := p.normalizeResponse(data, req)

		choices := got["choices"].([]any)
		require.Len(t, choices, 1)
		choice := choices[0].(map[string]any)
		assert.Equal(t, "stop", choice["finish_reason"])
		message := choice["message"].(map[string]any)
		assert.Equal(t, "assistant", message["role"])
		assert.Equal(t, "raw completion", message["content"])
		assert.Contains(t, got["id"].(string), "chatcmpl-hf-")
	})

	t.Run("empty body still yields one choice", func(t *testing.T) {
		got := p.normalizeResponse(map[string]any{}, req)
		choices := got["choices"].([]any)
		require.Len(t, choices, 1)
		message := choices[0].(map[string]any)["message"].(map[string]any)
		assert.Equal(t, "", message["content"])
	})
}

func TestHuggingFace_ChatCompletionsEndToEnd(t *testing.T) {
	var gotPath string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotPayload))
		io.WriteString(w, `{"generated_text":"howdy"}`)
	}))
	defer server.Close()

	deps, creds, _ := newProviderDeps(t)
	require.NoError(t, creds.Upsert(context.Background(), "huggingface", "hf-key"))
	spec := testSpec("huggingface", server.URL)
	spec.ChatCompletionsPath = "/hf-inference/models/{model_id}/v1/chat/completions"
	adapter, err := NewAdapter(spec, deps)
	require.NoError(t, err)

	resp, err := adapter.ChatCompletions(context.Background(), &llm.ChatCompletionRequest{
		Model:    "meta-llama/Llama-3.2-1B-Instruct",
		Messages: []map[string]any{{"role": "user", "content": "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "/hf-inference/models/meta-llama/Llama-3.2-1B-Instruct/v1/chat/completions", gotPath)
	assert.NotContains(t, gotPayload, "model")
	require.Len(t, resp.Choices, 1)
	message := resp.Choices[0]["message"].(map[string]any)
	assert.Equal(t, "howdy", message["content"])
	assert.Equal(t, "meta-llama/Llama-3.2-1B-Instruct", resp.Model)
}
