package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/llmgateway/config"
	"github.com/BaSui01/llmgateway/llm"
)

// cohere translates between the OpenAI chat shape and the Cohere v2
// chat API: typed content parts on both legs, tool calls flattened to
// the OpenAI function-call form, citations preserved under message
// metadata and usage.tokens mapped to prompt/completion counts.
type cohere struct {
	client
}

func newCohere(spec config.ProviderSpec, deps Deps) *cohere {
	return &cohere{client: newClient("cohere", spec, deps)}
}

func (p *cohere) ChatCompletions(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
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

func (p *cohere) ValidateAPIKey(ctx context.Context, apiKey string) error {
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

func (p *cohere) buildPayload(req *llm.ChatCompletionRequest) map[string]any {
	messages := make([]map[string]any, 0, len(req.Messages))
	for _, message := range req.Messages {
		messages = append(messages, p.buildMessage(message))
	}

	payload := map[string]any{
		"model":    req.Model,
		"messages": messages,
	}
	setIfFloat(payload, "temperature", req.Temperature)
	setIfInt(payload, "max_tokens", req.MaxTokens)
	setIfFloat(payload, "top_p", req.TopP)
	setIfBool(payload, "stream", req.Stream)
	return payload
}

// buildMessage coerces the loose OpenAI content field into Cohere's
// typed content part list.
func (p *cohere) buildMessage(message map[string]any) map[string]any {
	normalized := make(map[string]any, len(message))
	for key, value := range message {
		normalized[key] = value
	}

	content, exists := message["content"]
	switch typed := content.(type) {
	case string:
		normalized["content"] = []map[string]any{{"type": "text", "text": typed}}
	case []any:
		parts := make([]map[string]any, 0, len(typed))
		for _, item := range typed {
			if converted := p.convertRequestContentItem(item); converted != nil {
				parts = append(parts, converted)
			}
		}
		if len(parts) > 0 {
			normalized["content"] = parts
		} else {
			normalized["content"] = []map[string]any{}
		}
	default:
		if !exists || content == nil {
			normalized["content"] = []map[string]any{}
		} else {
			normalized["content"] = []map[string]any{{"type": "text", "text": fmt.Sprint(content)}}
		}
	}
	return normalized
}

func (p *cohere) convertRequestContentItem(item any) map[string]any {
	if text, ok := item.(string); ok {
		return map[string]any{"type": "text", "text": text}
	}
	part, ok := item.(map[string]any)
	if !ok {
		return nil
	}

	switch part["type"] {
	case "text", "input_text":
		if text, ok := part["text"].(string); ok {
			return map[string]any{"type": "text", "text": text}
		}
	case "image", "image_url", "input_image":
		return p.buildImagePart(part)
	default:
		if text, ok := part["text"].(string); ok {
			return map[string]any{"type": "text", "text": text}
		}
		if text, ok := part["content"].(string); ok {
			return map[string]any{"type": "text", "text": text}
		}
	}
	return nil
}

// buildImagePart accepts the several image shapes clients send
// (Cohere-native source, {image:{b64_json|url}}, OpenAI image_url)
// and produces a Cohere image content part.
func (p *cohere) buildImagePart(item map[string]any) map[string]any {
	if source, ok := item["source"].(map[string]any); ok {
		return map[string]any{"type": "image", "source": source}
	}

	if image, ok := item["image"].(map[string]any); ok {
		b64, _ := image["b64_json"].(string)
		if b64 == "" {
			b64, _ = image["base64"].(string)
		}
		mediaType, _ := image["media_type"].(string)
		if mediaType == "" {
			mediaType, _ = image["mime_type"].(string)
		}

		if b64 != "" {
			if mediaType == "" {
				mediaType = "image/png"
			}
			return map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": mediaType,
					"data":       b64,
				},
			}
		}
		if urlRef, ok := image["url"].(string); ok {
			if source := p.buildImageSourceFromURL(urlRef, mediaType); source != nil {
				return map[string]any{"type": "image", "source": source}
			}
		}
	}

	var rawURL, mediaType string
	switch imageURL := item["image_url"].(type) {
	case map[string]any:
		rawURL, _ = imageURL["url"].(string)
		mediaType, _ = imageURL["media_type"].(string)
	case string:
		rawURL = imageURL
	}
	if rawURL != "" {
		if source := p.buildImageSourceFromURL(rawURL, mediaType); source != nil {
			return map[string]any{"type": "image", "source": source}
		}
	}
	return nil
}

func (p *cohere) buildImageSourceFromURL(rawURL, mediaType string) map[string]any {
	if strings.HasPrefix(rawURL, "data:") {
		parsedType, data := parseDataURL(rawURL)
		if data == "" {
			return nil
		}
		resolved := parsedType
		if resolved == "" {
			resolved = mediaType
		}
		if resolved == "" {
			resolved = "image/png"
		}
		return map[string]any{"type": "base64", "media_type": resolved, "data": data}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil
	}
	source := map[string]any{"type": "url", "url": rawURL}
	if mediaType != "" {
		source["media_type"] = mediaType
	}
	return source
}

// parseDataURL splits a base64 data URL into media type and payload.
func parseDataURL(rawURL string) (mediaType, data string) {
	header, payload, found := strings.Cut(rawURL, ",")
	if !found || !strings.HasPrefix(header, "data:") {
		return "", ""
	}
	meta := strings.TrimPrefix(header, "data:")
	if !strings.Contains(meta, ";base64") {
		return "", ""
	}
	return strings.SplitN(meta, ";", 2)[0], payload
}

func (p *cohere) normalizeResponse(data map[string]any, req *llm.ChatCompletionRequest) map[string]any {
	message, _ := data["message"].(map[string]any)
	contentItems, _ := message["content"].([]any)

	var orderedContent []map[string]any
	var toolCalls []map[string]any
	var citations []any
	hasNonText := false

	for _, raw := range contentItems {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch item["type"] {
		case "text":
			if text, ok := item["text"].(string); ok {
				orderedContent = append(orderedContent, map[string]any{"type": "text", "text": text})
			}
		case "tool_calls":
			if calls, ok := item["tool_calls"].([]any); ok {
				for _, call := range calls {
					if tool, ok := call.(map[string]any); ok {
						toolCalls = append(toolCalls, p.normalizeToolCall(tool))
					}
				}
			}
		case "citation":
			if cites, ok := item["citations"].([]any); ok {
				citations = append(citations, cites...)
			}
		default:
			if converted := p.convertResponseContentItem(item); converted != nil {
				orderedContent = append(orderedContent, converted)
				hasNonText = true
			}
		}
	}

	if len(orderedContent) == 0 {
		if text, ok := data["text"].(string); ok && text != "" {
			orderedContent = append(orderedContent, map[string]any{"type": "text", "text": text})
		}
	}

	assistantMessage := map[string]any{"role": "assistant"}
	if len(orderedContent) > 0 {
		if hasNonText {
			assistantMessage["content"] = orderedContent
		} else {
			var builder strings.Builder
			for _, part := range orderedContent {
				text, _ := part["text"].(string)
				builder.WriteString(text)
			}
			assistantMessage["content"] = builder.String()
		}
	} else {
		assistantMessage["content"] = ""
	}
	if len(toolCalls) > 0 {
		assistantMessage["tool_calls"] = toolCalls
	}
	if len(citations) > 0 {
		assistantMessage["metadata"] = map[string]any{"cohere": map[string]any{"citations": citations}}
	}

	choice := map[string]any{
		"index":         0,
		"message":       assistantMessage,
		"finish_reason": firstNonEmptyString(stringField(data, "finish_reason"), stringField(message, "finish_reason"), stringField(data, "stop_reason"), "stop"),
	}

	normalized := map[string]any{
		"id":      firstNonEmptyString(stringField(data, "id"), fmt.Sprintf("chatcmpl-cohere-%d", time.Now().UnixMilli())),
		"object":  firstNonEmptyString(stringField(data, "object"), "chat.completion"),
		"created": numberOrDefault(data["created"], time.Now().Unix()),
		"model":   firstNonEmptyString(stringField(data, "model"), req.Model),
		"choices": []any{choice},
	}
	if usage := p.normalizeUsage(data["usage"]); usage != nil {
		normalized["usage"] = usage
	}
	return normalized
}

func (p *cohere) convertResponseContentItem(item map[string]any) map[string]any {
	if item["type"] != "image" {
		return nil
	}
	source, ok := item["source"].(map[string]any)
	if !ok {
		return nil
	}

	switch source["type"] {
	case "url":
		if sourceURL, ok := source["url"].(string); ok {
			imageURL := map[string]any{"url": sourceURL}
			if mediaType, ok := source["media_type"].(string); ok && mediaType != "" {
				imageURL["media_type"] = mediaType
			}
			return map[string]any{"type": "image_url", "image_url": imageURL}
		}
	case "base64":
		if data, ok := source["data"].(string); ok {
			mediaType, _ := source["media_type"].(string)
			if mediaType == "" {
				mediaType = "image/png"
			}
			dataURL := fmt.Sprintf("data:%s;base64,%s", mediaType, data)
			return map[string]any{"type": "image_url", "image_url": map[string]any{"url": dataURL}}
		}
	}
	return nil
}

func (p *cohere) normalizeToolCall(tool map[string]any) map[string]any {
	normalized := map[string]any{
		"id":   firstNonEmptyString(stringField(tool, "id")),
		"type": firstNonEmptyString(stringField(tool, "type"), "function"),
	}
	if function, ok := tool["function"].(map[string]any); ok {
		var argumentsStr string
		switch arguments := function["arguments"].(type) {
		case map[string]any, []any:
			if encoded, err := json.Marshal(arguments); err == nil {
				argumentsStr = string(encoded)
			} else {
				argumentsStr = "{}"
			}
		case string:
			argumentsStr = arguments
		}
		if argumentsStr == "" {
			argumentsStr = "{}"
		}
		normalized["function"] = map[string]any{
			"name":      stringField(function, "name"),
			"arguments": argumentsStr,
		}
	}
	return normalized
}

// normalizeUsage maps Cohere's usage.tokens counters to OpenAI names;
// total is derived when the vendor omits it.
func (p *cohere) normalizeUsage(raw any) map[string]any {
	usage, ok := raw.(map[string]any)
	if !ok || len(usage) == 0 {
		return nil
	}

	var prompt, completion, total any
	if tokens, ok := usage["tokens"].(map[string]any); ok {
		prompt = firstNonNil(tokens["input"], tokens["prompt"])
		completion = firstNonNil(tokens["output"], tokens["generation"])
		total = tokens["total"]
	} else {
		prompt = usage["prompt_tokens"]
		completion = usage["completion_tokens"]
		total = usage["total_tokens"]
	}

	if total == nil {
		promptN, promptOK := asFloat(prompt)
		completionN, completionOK := asFloat(completion)
		if promptOK && completionOK {
			total = promptN + completionN
		}
	}

	result := map[string]any{}
	if prompt != nil {
		result["prompt_tokens"] = prompt
	}
	if completion != nil {
		result["completion_tokens"] = completion
	}
	if total != nil {
		result["total_tokens"] = total
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	value, _ := m[key].(string)
	return value
}

func firstNonEmptyString(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func firstNonNil(values ...any) any {
	for _, value := range values {
		if value != nil {
			return value
		}
	}
	return nil
}

func asFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	}
	return 0, false
}

func numberOrDefault(value any, fallback int64) any {
	if value == nil {
		return fallback
	}
	if _, ok := asFloat(value); ok {
		return value
	}
	return fallback
}
