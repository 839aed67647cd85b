package handlers

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/llmgateway/config"
	"github.com/BaSui01/llmgateway/internal/telemetry"
	"github.com/BaSui01/llmgateway/llm"
)

// === 🎯 测试脚手架 ===

// fakeAdapter 以函数字段定制行为的测试适配器。
type fakeAdapter struct {
	id       string
	chatFn   func(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error)
	verifyFn func(ctx context.Context, apiKey string) error
}

func (a *fakeAdapter) ProviderID() string { return a.id }

func (a *fakeAdapter) ChatCompletions(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	if a.chatFn == nil {
		return &llm.ChatCompletionResponse{ID: "chatcmpl-fake", Model: req.Model}, nil
	}
	return a.chatFn(ctx, req)
}

func (a *fakeAdapter) ValidateAPIKey(ctx context.Context, apiKey string) error {
	if a.verifyFn == nil {
		return nil
	}
	return a.verifyFn(ctx, apiKey)
}

// fixture 一套完整的处理器装配:内存 sqlite + 可定制的假适配器。
type fixture struct {
	db          *gorm.DB
	credentials *llm.CredentialStore
	traces      *llm.TraceStore
	events      *telemetry.EventStore
	registry    *llm.Registry
	selector    *llm.Selector
	adapters    map[string]*fakeAdapter
}

func defaultSpecs() []config.ProviderSpec {
	return []config.ProviderSpec{
		{ID: "cerebras", Name: "Cerebras", Priority: 10, Models: map[string]string{"default": "llama3.1-8b"}},
		{ID: "cohere", Name: "Cohere", Priority: 20, Models: map[string]string{"default": "command-r7b-12-2024"}},
	}
}

func newFixture(t *testing.T, specs []config.ProviderSpec) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, llm.InitDatabase(db))
	require.NoError(t, telemetry.InitDatabase(db))

	f := &fixture{
		db:          db,
		credentials: llm.NewCredentialStore(db, zap.NewNop()),
		traces:      llm.NewTraceStore(db, zap.NewNop()),
		events:      telemetry.NewEventStore(db, config.EventsConfig{Enabled: true, RetentionDays: 2}, zap.NewNop()),
		adapters:    map[string]*fakeAdapter{},
	}

	factory := func(spec config.ProviderSpec) (llm.Adapter, error) {
		adapter, ok := f.adapters[spec.ID]
		if !ok {
			return nil, llm.ErrUnavailable(spec.ID, "No adapter configured")
		}
		return adapter, nil
	}
	f.registry = llm.NewRegistry(specs, factory, f.credentials)
	f.selector = llm.NewSelector(f.registry, f.events, nil, zap.NewNop())
	return f
}

func (f *fixture) chatHandler() *ChatHandler {
	return NewChatHandler(f.selector, f.events, zap.NewNop())
}

func (f *fixture) adminHandler() *AdminHandler {
	return NewAdminHandler(f.registry, f.credentials, f.traces, f.events, zap.NewNop())
}
