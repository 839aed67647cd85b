package llm

import (
	"context"
	"sort"
	"sync"

	"github.com/BaSui01/llmgateway/config"
)

// AdapterFactory 按提供者配置构造适配器。
// 未注册的 id 返回 config_error 类别的 "No adapter configured"。
type AdapterFactory func(spec config.ProviderSpec) (Adapter, error)

// ProviderState 把静态配置与凭据快照合成的派生可用性视图。
// 仅供管理面板展示，不参与持久化。
type ProviderState struct {
	Provider   config.ProviderSpec
	Credential *ProviderCredential
}

// HasAPIKey 返回是否存有非空 key。
func (s ProviderState) HasAPIKey() bool { return s.Credential.HasAPIKey() }

// IsAvailable 返回 has_api_key ∧ last_error == nil。
func (s ProviderState) IsAvailable() bool {
	return s.Credential.HasAPIKey() && s.Credential.LastError == nil
}

// Registry 维护配置中的提供者及惰性构造的适配器实例。
// 适配器实例跨请求共享，要求并发安全（只持有不可变配置与 HTTP 客户端）。
type Registry struct {
	specs       []config.ProviderSpec
	factory     AdapterFactory
	credentials *CredentialStore

	mu       sync.Mutex
	adapters map[string]Adapter
}

// NewRegistry 创建注册表。specs 会按 priority 稳定升序排序，
// 同优先级保持配置顺序。
func NewRegistry(specs []config.ProviderSpec, factory AdapterFactory, credentials *CredentialStore) *Registry {
	sorted := make([]config.ProviderSpec, len(specs))
	copy(sorted, specs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return &Registry{
		specs:       sorted,
		factory:     factory,
		credentials: credentials,
		adapters:    make(map[string]Adapter),
	}
}

// Providers 返回按优先级升序排列的提供者配置。
func (r *Registry) Providers() []config.ProviderSpec {
	out := make([]config.ProviderSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Provider 按 id 查找提供者配置。
func (r *Registry) Provider(id string) (config.ProviderSpec, bool) {
	for _, spec := range r.specs {
		if spec.ID == id {
			return spec, true
		}
	}
	return config.ProviderSpec{}, false
}

// Adapter 返回某提供者的适配器实例，首次使用时构造并缓存。
func (r *Registry) Adapter(spec config.ProviderSpec) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if adapter, ok := r.adapters[spec.ID]; ok {
		return adapter, nil
	}
	adapter, err := r.factory(spec)
	if err != nil {
		return nil, err
	}
	r.adapters[spec.ID] = adapter
	return adapter, nil
}

// States 把实时配置与凭据行快照连接成派生状态列表。
func (r *Registry) States(ctx context.Context) ([]ProviderState, error) {
	stored := make(map[string]*ProviderCredential)
	if r.credentials != nil {
		rows, err := r.credentials.List(ctx)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			stored[rows[i].ProviderID] = &rows[i]
		}
	}

	states := make([]ProviderState, 0, len(r.specs))
	for _, spec := range r.specs {
		states = append(states, ProviderState{
			Provider:   spec,
			Credential: stored[spec.ID],
		})
	}
	return states, nil
}
