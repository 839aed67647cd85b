package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/llmgateway/config"
	"github.com/BaSui01/llmgateway/llm"
)

// maxErrorDetailLength caps vendor error details surfaced to callers.
const maxErrorDetailLength = 300

// gemini maps the OpenAI chat shape onto generateContent: system
// messages become systemInstruction, assistant becomes role "model",
// sampling knobs move under generationConfig. Gemini's error bodies
// carry useful quota diagnostics, so failures append a trimmed detail.
type gemini struct {
	client
}

func newGemini(spec config.ProviderSpec, deps Deps) *gemini {
	return &gemini{client: newClient("gemini", spec, deps)}
}

func (p *gemini) ChatCompletions(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	apiKey, err := p.apiKey(ctx)
	if err != nil {
		return nil, err
	}

	data, err := p.postChat(ctx, chatCall{
		url:         p.endpoint(modelSlug(req.Model)),
		headers:     map[string]string{"x-goog-api-key": apiKey},
		payload:     p.buildPayload(req),
		trackErrors: true,
		errorDetail: extractGeminiErrorDetail,
	})
	if err != nil {
		return nil, err
	}

	return decodeResponse(p.id, p.normalizeResponse(data, req))
}

func (p *gemini) ValidateAPIKey(ctx context.Context, apiKey string) error {
	probe, err := p.healthRequest(16)
	if err != nil {
		return err
	}
	_, err = p.postChat(ctx, chatCall{
		url:         p.endpoint(modelSlug(probe.Model)),
		headers:     map[string]string{"x-goog-api-key": apiKey},
		payload:     p.buildPayload(probe),
		trackErrors: false,
		errorDetail: extractGeminiErrorDetail,
	})
	return err
}

// modelSlug strips the optional "models/" prefix clients sometimes send.
func modelSlug(model string) string {
	return strings.TrimPrefix(model, "models/")
}

func (p *gemini) buildPayload(req *llm.ChatCompletionRequest) map[string]any {
	var contents []map[string]any
	var systemParts []map[string]any

	for _, message := range req.Messages {
		text := flattenText(message["content"])
		if text == "" {
			continue
		}

		role, _ := message["role"].(string)
		if role == "system" {
			systemParts = append(systemParts, map[string]any{"text": text})
			continue
		}

		mappedRole := "user"
		if role == "assistant" {
			mappedRole = "model"
		}
		contents = append(contents, map[string]any{
			"role":  mappedRole,
			"parts": []map[string]any{{"text": text}},
		})
	}

	payload := map[string]any{}
	if len(contents) > 0 {
		payload["contents"] = contents
	}
	if len(systemParts) > 0 {
		payload["systemInstruction"] = map[string]any{"parts": systemParts}
	}

	generationConfig := map[string]any{}
	setIfFloat(generationConfig, "temperature", req.Temperature)
	setIfInt(generationConfig, "maxOutputTokens", req.MaxTokens)
	setIfFloat(generationConfig, "topP", req.TopP)
	setIfFloat(generationConfig, "frequencyPenalty", req.FrequencyPenalty)
	setIfFloat(generationConfig, "presencePenalty", req.PresencePenalty)
	if len(generationConfig) > 0 {
		payload["generationConfig"] = generationConfig
	}
	return payload
}

// flattenText collapses string/part-list/object content into plain text.
func flattenText(content any) string {
	switch typed := content.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []any:
		var builder strings.Builder
		for _, item := range typed {
			switch part := item.(type) {
			case map[string]any:
				if text, ok := part["text"].(string); ok {
					builder.WriteString(text)
				} else if text, ok := part["content"].(string); ok {
					builder.WriteString(text)
				}
			case string:
				builder.WriteString(part)
			}
		}
		return builder.String()
	case map[string]any:
		if text, ok := typed["text"].(string); ok {
			return text
		}
		if text, ok := typed["content"].(string); ok {
			return text
		}
		return ""
	default:
		return fmt.Sprint(typed)
	}
}

func (p *gemini) normalizeResponse(data map[string]any, req *llm.ChatCompletionRequest) map[string]any {
	candidate := selectCandidate(data["candidates"])

	text := ""
	finishReason := "stop"
	metadata := map[string]any{}

	if candidate != nil {
		if content, ok := candidate["content"].(map[string]any); ok {
			if parts, ok := content["parts"].([]any); ok {
				var builder strings.Builder
				for _, raw := range parts {
					if part, ok := raw.(map[string]any); ok {
						if fragment, ok := part["text"].(string); ok {
							builder.WriteString(fragment)
						}
					}
				}
				text = builder.String()
			}
		}
		if reason, ok := candidate["finishReason"].(string); ok && reason != "" {
			finishReason = reason
		}
		if safety, ok := candidate["safetyRatings"].([]any); ok && len(safety) > 0 {
			metadata["safetyRatings"] = safety
		}
		if citationMeta, ok := candidate["citationMetadata"].(map[string]any); ok {
			if citations, ok := citationMeta["citations"].([]any); ok && len(citations) > 0 {
				metadata["gemini"] = map[string]any{"citations": citations}
			}
		}
	}

	message := map[string]any{"role": "assistant", "content": text}
	if len(metadata) > 0 {
		message["metadata"] = metadata
	}

	choice := map[string]any{
		"index":         0,
		"message":       message,
		"finish_reason": strings.ToLower(finishReason),
	}

	normalized := map[string]any{
		"id":      firstNonEmptyString(stringField(data, "id"), fmt.Sprintf("chatcmpl-gemini-%d", time.Now().UnixMilli())),
		"object":  firstNonEmptyString(stringField(data, "object"), "chat.completion"),
		"created": numberOrDefault(data["created"], time.Now().Unix()),
		"model":   req.Model,
		"choices": []any{choice},
	}
	if usage := normalizeGeminiUsage(data["usageMetadata"]); usage != nil {
		normalized["usage"] = usage
	}
	return normalized
}

func selectCandidate(raw any) map[string]any {
	candidates, ok := raw.([]any)
	if !ok {
		return nil
	}
	for _, candidate := range candidates {
		if typed, ok := candidate.(map[string]any); ok {
			return typed
		}
	}
	return nil
}

func normalizeGeminiUsage(raw any) map[string]any {
	usage, ok := raw.(map[string]any)
	if !ok || len(usage) == 0 {
		return nil
	}

	result := map[string]any{}
	prompt, promptOK := asFloat(usage["promptTokenCount"])
	completion, completionOK := asFloat(usage["candidatesTokenCount"])
	if promptOK {
		result["prompt_tokens"] = int(prompt)
	}
	if completionOK {
		result["completion_tokens"] = int(completion)
	}
	if total, ok := asFloat(usage["totalTokenCount"]); ok {
		result["total_tokens"] = int(total)
	} else if promptOK && completionOK {
		result["total_tokens"] = int(prompt + completion)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// extractGeminiErrorDetail summarizes error bodies as
// "<error.status> - <error.message>" with whitespace collapsed and a
// hard length cap.
func extractGeminiErrorDetail(raw []byte) string {
	var detail string

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		detail = strings.TrimSpace(string(raw))
	} else {
		switch data := decoded.(type) {
		case map[string]any:
			if errObj, ok := data["error"].(map[string]any); ok {
				var parts []string
				for _, key := range []string{"status", "message"} {
					if value, ok := errObj[key].(string); ok {
						if trimmed := strings.TrimSpace(value); trimmed != "" {
							parts = append(parts, trimmed)
						}
					}
				}
				if len(parts) > 0 {
					detail = strings.Join(parts, " - ")
				} else if len(errObj) > 0 {
					detail = fmt.Sprint(errObj)
				}
			} else if message, ok := data["message"].(string); ok {
				detail = message
			} else if len(data) > 0 {
				detail = fmt.Sprint(data)
			}
		case nil:
		default:
			detail = fmt.Sprint(data)
		}
	}

	if detail == "" {
		return ""
	}
	compact := strings.Join(strings.Fields(detail), " ")
	if len(compact) > maxErrorDetailLength {
		compact = compact[:maxErrorDetailLength-3] + "..."
	}
	return compact
}
