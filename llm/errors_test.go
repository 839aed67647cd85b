package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Failover(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		failover bool
		isAuth   bool
	}{
		{"auth missing", ErrAuthMissing("cerebras"), true, true},
		{"auth required", ErrAuthRequired("cerebras"), true, true},
		{"unavailable", ErrUnavailable("cerebras", "Provider request failed"), true, false},
		{"config error", ErrConfig("cerebras", "No default model configured"), false, false},
		{"internal", &Error{Kind: KindInternal, ProviderID: "cerebras", Message: "boom"}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.failover, tt.err.Failover())
			assert.Equal(t, tt.isAuth, tt.err.IsAuth())
		})
	}
}

func TestAsError(t *testing.T) {
	provErr, ok := AsError(fmt.Errorf("wrapped: %w", ErrAuthMissing("cohere")))
	require.True(t, ok)
	assert.Equal(t, KindAuthMissing, provErr.Kind)
	assert.Equal(t, "cohere", provErr.ProviderID)

	_, ok = AsError(errors.New("plain"))
	assert.False(t, ok)

	_, ok = AsError(nil)
	assert.False(t, ok)
}
