package llm

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/llmgateway/internal/ctxkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTraceStore_RecordAndList(t *testing.T) {
	store := NewTraceStore(newTestDB(t), zap.NewNop())
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	clock := base
	store.nowFn = func() time.Time { return clock }
	ctx := ctxkeys.WithRequestID(context.Background(), "req-abc123")

	store.Record(ctx, "cerebras",
		map[string]any{"model": "llama3.1-8b"},
		map[string]any{"id": "chatcmpl-1"},
	)
	clock = base.Add(time.Minute)
	store.Record(ctx, "cerebras",
		map[string]any{"model": "llama3.1-8b"},
		map[string]any{"id": "chatcmpl-2"},
	)

	entries, err := store.List(ctx, "cerebras", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// 新的在前
	first, ok := entries[0].ResponseBody.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "chatcmpl-2", first["id"])
	assert.Equal(t, "req-abc123", entries[0].RequestID)

	reqBody, ok := entries[0].RequestBody.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "llama3.1-8b", reqBody["model"])
	assert.Contains(t, entries[0].ResponseBodyPretty, "chatcmpl-2")

	// 其他提供者不可见
	other, err := store.List(ctx, "cohere", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestTraceStore_RetentionDropsPreviousDays(t *testing.T) {
	store := NewTraceStore(newTestDB(t), zap.NewNop())
	yesterday := time.Date(2026, 3, 13, 23, 50, 0, 0, time.UTC)
	today := time.Date(2026, 3, 14, 0, 10, 0, 0, time.UTC)
	ctx := context.Background()

	clock := yesterday
	store.nowFn = func() time.Time { return clock }
	store.Record(ctx, "gemini", map[string]any{"day": "old"}, nil)

	// 跨天后的下一次写入在同一事务里清掉昨天的痕迹
	clock = today
	store.Record(ctx, "gemini", map[string]any{"day": "new"}, nil)

	var count int64
	require.NoError(t, store.db.Model(&ProviderLog{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	entries, err := store.List(ctx, "gemini", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	body, ok := entries[0].RequestBody.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "new", body["day"])
}

func TestTraceStore_ListRespectsLimit(t *testing.T) {
	store := NewTraceStore(newTestDB(t), zap.NewNop())
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	clock := base
	store.nowFn = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.Record(ctx, "openrouter", map[string]any{"n": i}, nil)
		clock = clock.Add(time.Second)
	}

	entries, err := store.List(ctx, "openrouter", 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestEncodeBody(t *testing.T) {
	assert.Nil(t, encodeBody(nil))

	encoded := encodeBody(map[string]any{"k": "v"})
	require.NotNil(t, encoded)
	assert.JSONEq(t, `{"k":"v"}`, *encoded)

	// 不可序列化的载荷降级为字符串表示
	encoded = encodeBody(func() {})
	require.NotNil(t, encoded)
	assert.NotEmpty(t, *encoded)
}

func TestPrettyBody(t *testing.T) {
	assert.Equal(t, "", prettyBody(nil))
	assert.Equal(t, "plain", prettyBody("plain"))
	assert.Contains(t, prettyBody(map[string]any{"a": 1}), "\n")
}
