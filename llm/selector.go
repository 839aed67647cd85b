package llm

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/llmgateway/config"
	"github.com/BaSui01/llmgateway/internal/metrics"
	"github.com/BaSui01/llmgateway/internal/telemetry"
)

// Selector 按优先级驱动失败转移的路由引擎。
// 单请求内严格串行：同一时刻最多一个上游调用在途，
// 同一提供者不重试，首个成功即返回。
type Selector struct {
	registry *Registry
	events   *telemetry.EventStore
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewSelector 创建选择器。events 与 metrics 可为 nil。
func NewSelector(registry *Registry, events *telemetry.EventStore, collector *metrics.Collector, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		registry: registry,
		events:   events,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "selector")),
	}
}

// ChatCompletions 依次尝试候选提供者直到成功。
//
// providerID 非空时只路由到该提供者（来自路由头的显式覆盖）。
// 每次失败发出 WARNING provider_fail；切换到下一候选时发出
// INFO provider_switched；候选耗尽时发出 ERROR request_error
// 并返回最后一次观察到的错误。config_error 不参与转移，直接中止。
func (s *Selector) ChatCompletions(ctx context.Context, req *ChatCompletionRequest, providerID string) (*ChatCompletionResponse, error) {
	candidates, err := s.resolveCandidates(providerID)
	if err != nil {
		return nil, err
	}

	var (
		prevFailedID string
		prevMessage  string
		prevModel    string
		finalErr     *Error
		finalModel   string
	)

	for i, spec := range candidates {
		attempt := i + 1

		if prevFailedID != "" {
			s.emit(ctx, telemetry.Event{
				Kind:         telemetry.KindProviderSwitched,
				Level:        telemetry.LevelInfo,
				Message:      fmt.Sprintf("Switched from %s to %s", prevFailedID, spec.ID),
				ProviderFrom: prevFailedID,
				ProviderTo:   spec.ID,
				Model:        prevModel,
				Meta:         map[string]any{"reason": prevMessage, "attempt": attempt},
			})
			s.metrics.RecordFailover()
			prevFailedID, prevMessage, prevModel = "", "", ""
		}

		effectiveModel := req.Model
		if effectiveModel == "" {
			effectiveModel = spec.DefaultModel()
			if effectiveModel == "" {
				return nil, ErrConfig(spec.ID, "No default model configured")
			}
		}
		callReq := req
		if effectiveModel != req.Model {
			callReq = req.WithModel(effectiveModel)
		}

		resp, callErr := s.attempt(ctx, spec, callReq, attempt)
		if callErr == nil {
			s.metrics.RecordProviderAttempt(spec.ID, "success")
			return resp, nil
		}
		s.metrics.RecordProviderAttempt(spec.ID, "failure")

		// 客户端断连或上层取消：停止尝试后续候选，不记终态事件。
		if ctx.Err() != nil && errors.Is(callErr, ctx.Err()) {
			return nil, callErr
		}

		provErr, ok := AsError(callErr)
		if !ok || !provErr.Failover() {
			return nil, callErr
		}

		s.logger.Warn("provider attempt failed",
			zap.String("provider", spec.ID),
			zap.String("model", effectiveModel),
			zap.Int("attempt", attempt),
			zap.String("error", provErr.Message),
		)
		s.emit(ctx, telemetry.Event{
			Kind:         telemetry.KindProviderFail,
			Level:        telemetry.LevelWarning,
			Message:      provErr.Message,
			ProviderFrom: spec.ID,
			Model:        effectiveModel,
			ErrorCode:    string(provErr.Kind),
			Meta:         map[string]any{"attempt": attempt},
		})

		prevFailedID, prevMessage, prevModel = spec.ID, provErr.Message, effectiveModel
		finalErr, finalModel = provErr, effectiveModel
	}

	if finalErr != nil {
		s.emit(ctx, telemetry.Event{
			Kind:         telemetry.KindRequestError,
			Level:        telemetry.LevelError,
			Message:      finalErr.Message,
			ProviderFrom: finalErr.ProviderID,
			Model:        finalModel,
			ErrorCode:    string(finalErr.Kind),
		})
		return nil, finalErr
	}
	return nil, ErrUnavailable("unknown", "No providers configured")
}

// resolveCandidates 处理显式覆盖：未知 id 直接失败，不做回退。
func (s *Selector) resolveCandidates(providerID string) ([]config.ProviderSpec, error) {
	if providerID == "" {
		return s.registry.Providers(), nil
	}
	spec, ok := s.registry.Provider(providerID)
	if !ok {
		return nil, ErrUnavailable(providerID, "Provider not configured")
	}
	return []config.ProviderSpec{spec}, nil
}

// attempt 对单个提供者发起一次调用，并包一层追踪 span。
func (s *Selector) attempt(ctx context.Context, spec config.ProviderSpec, req *ChatCompletionRequest, attempt int) (*ChatCompletionResponse, error) {
	adapter, err := s.registry.Adapter(spec)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("llmgateway/selector").Start(ctx, "provider.chat_completions")
	span.SetAttributes(
		attribute.String("provider.id", spec.ID),
		attribute.String("llm.model", req.Model),
		attribute.Int("selector.attempt", attempt),
	)
	defer span.End()

	resp, err := adapter.ChatCompletions(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

func (s *Selector) emit(ctx context.Context, ev telemetry.Event) {
	if s.events == nil {
		return
	}
	s.events.Record(ctx, ev)
}
