package llm

import "errors"

// 统一的编排错误类别，用于对齐 HTTP 状态与失败转移策略。
type ErrorKind string

const (
	KindAuthMissing         ErrorKind = "auth_missing"         // 本地未配置凭据
	KindAuthRequired        ErrorKind = "auth_required"        // 上游返回 401
	KindProviderUnavailable ErrorKind = "provider_unavailable" // 网络错误、配额、泛化 >=400
	KindConfigError         ErrorKind = "config_error"         // 无默认模型等配置缺失
	KindInternal            ErrorKind = "internal"             // 其余未分类失败
)

// Error 是适配器与选择器之间传递失败结果的唯一载体。
type Error struct {
	Kind       ErrorKind `json:"kind"`
	ProviderID string    `json:"provider_id"`
	Message    string    `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// IsAuth 返回该错误是否属于凭据类失败（入口层映射为 401）。
func (e *Error) IsAuth() bool {
	return e.Kind == KindAuthMissing || e.Kind == KindAuthRequired
}

// Failover 返回选择器是否应当继续尝试下一个候选提供者。
// 配置错误会中止整个请求。
func (e *Error) Failover() bool {
	switch e.Kind {
	case KindAuthMissing, KindAuthRequired, KindProviderUnavailable:
		return true
	}
	return false
}

// ErrAuthMissing 表示本地没有该提供者的 API Key，未发起任何网络请求。
func ErrAuthMissing(providerID string) *Error {
	return &Error{Kind: KindAuthMissing, ProviderID: providerID, Message: "Provider credentials missing"}
}

// ErrAuthRequired 表示上游以 401 拒绝了请求。
func ErrAuthRequired(providerID string) *Error {
	return &Error{Kind: KindAuthRequired, ProviderID: providerID, Message: "Provider credentials missing"}
}

// ErrUnavailable 表示该提供者当前无法完成请求。
func ErrUnavailable(providerID, message string) *Error {
	if message == "" {
		message = "Provider unavailable"
	}
	return &Error{Kind: KindProviderUnavailable, ProviderID: providerID, Message: message}
}

// ErrConfig 表示配置缺失导致无法发起调用。
func ErrConfig(providerID, message string) *Error {
	return &Error{Kind: KindConfigError, ProviderID: providerID, Message: message}
}

// AsError 提取错误链中的 *Error。
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
