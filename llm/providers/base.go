package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/llmgateway/config"
	"github.com/BaSui01/llmgateway/llm"
)

const defaultTimeout = 30 * time.Second

// Deps carries the shared collaborators every adapter needs.
// Traces may be nil (tracing disabled); Client defaults to a 30s client.
type Deps struct {
	Credentials *llm.CredentialStore
	Traces      *llm.TraceStore
	Client      *http.Client
	Logger      *zap.Logger
}

func (d Deps) httpClient() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: defaultTimeout}
}

func (d Deps) logger() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}

// Factory adapts NewAdapter to the registry's factory signature.
func Factory(deps Deps) llm.AdapterFactory {
	return func(spec config.ProviderSpec) (llm.Adapter, error) {
		return NewAdapter(spec, deps)
	}
}

// NewAdapter constructs the adapter registered for spec.ID.
func NewAdapter(spec config.ProviderSpec, deps Deps) (llm.Adapter, error) {
	switch spec.ID {
	case "cerebras":
		return newCerebras(spec, deps), nil
	case "cohere":
		return newCohere(spec, deps), nil
	case "gemini":
		return newGemini(spec, deps), nil
	case "openrouter":
		return newOpenRouter(spec, deps), nil
	case "huggingface":
		return newHuggingFace(spec, deps), nil
	default:
		return nil, llm.ErrUnavailable(spec.ID, "No adapter configured")
	}
}

// client bundles the per-provider state shared by all adapters.
type client struct {
	id   string
	spec config.ProviderSpec
	deps Deps
}

func newClient(id string, spec config.ProviderSpec, deps Deps) client {
	return client{id: id, spec: spec, deps: deps}
}

func (c *client) ProviderID() string { return c.id }

// apiKey resolves the stored credential; absent keys fail fast
// without touching the network.
func (c *client) apiKey(ctx context.Context) (string, error) {
	key, err := c.deps.Credentials.APIKey(ctx, c.id)
	if err != nil {
		return "", llm.ErrUnavailable(c.id, "Credential store unavailable")
	}
	if key == "" {
		return "", llm.ErrAuthMissing(c.id)
	}
	return key, nil
}

// endpoint expands {model} / {model_id} placeholders in the configured path.
func (c *client) endpoint(model string) string {
	path := c.spec.ChatCompletionsPath
	path = strings.ReplaceAll(path, "{model}", model)
	path = strings.ReplaceAll(path, "{model_id}", model)
	return strings.TrimRight(c.spec.BaseURL, "/") + path
}

// healthRequest builds the minimal probe request used by ValidateAPIKey.
func (c *client) healthRequest(maxTokens int) (*llm.ChatCompletionRequest, error) {
	model := c.spec.DefaultModel()
	if model == "" {
		return nil, llm.ErrUnavailable(c.id, "Health check model not configured")
	}
	return &llm.ChatCompletionRequest{
		Model:     model,
		Messages:  []map[string]any{{"role": "user", "content": "healthcheck"}},
		MaxTokens: &maxTokens,
	}, nil
}

// chatCall is one upstream POST with classification parameters.
type chatCall struct {
	url     string
	headers map[string]string
	payload map[string]any

	// trackErrors toggles credential health updates and call traces;
	// health probes run with it off.
	trackErrors bool

	// errorDetail optionally enriches quota/error messages from the
	// vendor error body (Gemini).
	errorDetail func(body []byte) string
}

// postChat performs the call and classifies the outcome:
//
//	transport   -> provider_unavailable "Provider request failed"  (health code "network")
//	401         -> auth_required                                   (health code "auth")
//	402/403/429 -> provider_unavailable "Provider quota exhausted" (health code "rate_limit")
//	other >=400 -> provider_unavailable "Provider error"           (health code "http_<status>")
//	non-object  -> provider_unavailable "Unexpected response format"
//
// A 2xx JSON object clears the credential error and is returned as-is.
func (c *client) postChat(ctx context.Context, call chatCall) (map[string]any, error) {
	body, err := json.Marshal(call.payload)
	if err != nil {
		return nil, llm.ErrUnavailable(c.id, "Provider request failed")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, call.url, bytes.NewReader(body))
	if err != nil {
		return nil, llm.ErrUnavailable(c.id, "Provider request failed")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for name, value := range call.headers {
		httpReq.Header.Set(name, value)
	}

	resp, err := c.deps.httpClient().Do(httpReq)
	if err != nil {
		// 客户端取消原样上抛,选择器据此停止后续候选。
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if call.trackErrors {
			c.recordError(ctx, "network")
			c.trace(ctx, call.payload, buildErrorLog("network", err.Error(), 0, nil))
		}
		return nil, llm.ErrUnavailable(c.id, "Provider request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if call.trackErrors {
			c.recordError(ctx, "network")
			c.trace(ctx, call.payload, buildErrorLog("network", err.Error(), 0, nil))
		}
		return nil, llm.ErrUnavailable(c.id, "Provider request failed")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if call.trackErrors {
			c.recordError(ctx, "auth")
			c.trace(ctx, call.payload, buildErrorLog("unauthorized", "HTTP 401", resp.StatusCode, extractErrorBody(raw)))
		}
		return nil, llm.ErrAuthRequired(c.id)

	case resp.StatusCode == http.StatusPaymentRequired,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests:
		if call.trackErrors {
			c.recordError(ctx, "rate_limit")
			c.trace(ctx, call.payload, buildErrorLog("rate_limit", fmt.Sprintf("HTTP %d", resp.StatusCode), resp.StatusCode, extractErrorBody(raw)))
		}
		return nil, llm.ErrUnavailable(c.id, withDetail("Provider quota exhausted", call.errorDetail, raw))

	case resp.StatusCode >= 400:
		if call.trackErrors {
			c.recordError(ctx, fmt.Sprintf("http_%d", resp.StatusCode))
			c.trace(ctx, call.payload, buildErrorLog("http_error", fmt.Sprintf("HTTP %d", resp.StatusCode), resp.StatusCode, extractErrorBody(raw)))
		}
		return nil, llm.ErrUnavailable(c.id, withDetail("Provider error", call.errorDetail, raw))
	}

	if call.trackErrors {
		c.clearError(ctx)
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		if call.trackErrors {
			c.trace(ctx, call.payload, buildErrorLog("unexpected_response", "Response was not a JSON object", 0, extractErrorBody(raw)))
		}
		return nil, llm.ErrUnavailable(c.id, "Unexpected response format")
	}

	if call.trackErrors {
		c.trace(ctx, call.payload, data)
	}
	return data, nil
}

func (c *client) recordError(ctx context.Context, code string) {
	if err := c.deps.Credentials.RecordError(ctx, c.id, code); err != nil {
		c.deps.logger().Warn("failed to record credential error",
			zap.String("provider", c.id),
			zap.Error(err),
		)
	}
}

func (c *client) clearError(ctx context.Context) {
	if err := c.deps.Credentials.ClearError(ctx, c.id); err != nil {
		c.deps.logger().Warn("failed to clear credential error",
			zap.String("provider", c.id),
			zap.Error(err),
		)
	}
}

func (c *client) trace(ctx context.Context, requestBody, responseBody any) {
	if c.deps.Traces == nil {
		return
	}
	c.deps.Traces.Record(ctx, c.id, requestBody, responseBody)
}

// withDetail appends the vendor-supplied detail when a hook is set.
func withDetail(message string, hook func([]byte) string, raw []byte) string {
	if hook == nil {
		return message
	}
	if detail := hook(raw); detail != "" {
		return message + ": " + detail
	}
	return message
}

// extractErrorBody returns structured error details if the body is JSON,
// else a trimmed text body, else nil.
func extractErrorBody(raw []byte) any {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		return decoded
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return nil
}

// buildErrorLog assembles the consistent trace payload for failed calls.
func buildErrorLog(errorType, message string, statusCode int, responseBody any) map[string]any {
	errObj := map[string]any{
		"type":    errorType,
		"message": message,
	}
	if statusCode != 0 {
		errObj["status_code"] = statusCode
	}
	payload := map[string]any{"error": errObj}
	if responseBody != nil {
		payload["response"] = responseBody
	}
	return payload
}

// openaiPayload builds the passthrough payload for OpenAI-shaped vendors.
func openaiPayload(req *llm.ChatCompletionRequest) map[string]any {
	payload := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
	}
	setIfFloat(payload, "temperature", req.Temperature)
	setIfInt(payload, "max_tokens", req.MaxTokens)
	setIfBool(payload, "stream", req.Stream)
	setIfString(payload, "user", req.User)
	setIfFloat(payload, "presence_penalty", req.PresencePenalty)
	setIfFloat(payload, "frequency_penalty", req.FrequencyPenalty)
	setIfFloat(payload, "top_p", req.TopP)
	return payload
}

func setIfFloat(m map[string]any, key string, v *float64) {
	if v != nil {
		m[key] = *v
	}
}

func setIfInt(m map[string]any, key string, v *int) {
	if v != nil {
		m[key] = *v
	}
}

func setIfBool(m map[string]any, key string, v *bool) {
	if v != nil {
		m[key] = *v
	}
}

func setIfString(m map[string]any, key string, v *string) {
	if v != nil {
		m[key] = *v
	}
}

// decodeResponse converts a normalized JSON object into the response struct.
func decodeResponse(providerID string, data map[string]any) (*llm.ChatCompletionResponse, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, llm.ErrUnavailable(providerID, "Unexpected response format")
	}
	var resp llm.ChatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, llm.ErrUnavailable(providerID, "Unexpected response format")
	}
	return &resp, nil
}

// ensureOpenAIDefaults fills the keys OpenAI clients expect when the
// vendor omits them.
func ensureOpenAIDefaults(data map[string]any, model string) {
	if _, ok := data["object"]; !ok {
		data["object"] = "chat.completion"
	}
	if _, ok := data["created"]; !ok {
		data["created"] = time.Now().Unix()
	}
	if _, ok := data["model"]; !ok {
		data["model"] = model
	}
}
