package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/llmgateway/internal/ctxkeys"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProviderLog 单次上游调用的请求/响应痕迹，仅保留当天。
type ProviderLog struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	ProviderID   string    `gorm:"column:provider_id;type:varchar(100);not null;index:ix_provider_logs_provider_id"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	RequestID    string    `gorm:"column:request_id;type:varchar(64)"`
	RequestBody  *string   `gorm:"column:request_body;type:text"`
	ResponseBody *string   `gorm:"column:response_body;type:text"`
}

func (ProviderLog) TableName() string { return "provider_logs" }

// ProviderLogEntry 是解码后的痕迹视图，附带管理面板用的缩进形式。
type ProviderLogEntry struct {
	ID                 uint   `json:"id"`
	CreatedAt          string `json:"created_at"`
	RequestID          string `json:"request_id,omitempty"`
	RequestBody        any    `json:"request_body"`
	ResponseBody       any    `json:"response_body"`
	RequestBodyPretty  string `json:"request_body_pretty"`
	ResponseBodyPretty string `json:"response_body_pretty"`
}

// TraceStore 持久化每次上游调用的请求/响应体。
// 写入是尽力而为的：持久化失败只记日志，绝不进入调用方的控制流。
type TraceStore struct {
	db     *gorm.DB
	logger *zap.Logger
	nowFn  func() time.Time
}

// NewTraceStore 创建调用痕迹存储。
func NewTraceStore(db *gorm.DB, logger *zap.Logger) *TraceStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TraceStore{
		db:     db,
		logger: logger.With(zap.String("component", "trace_store")),
		nowFn:  time.Now,
	}
}

// Record 写入一条痕迹并在同一事务中清除今天之前的条目。
// request_id 缺省从 ctx 继承。
func (s *TraceStore) Record(ctx context.Context, providerID string, requestBody, responseBody any) {
	requestID, _ := ctxkeys.RequestID(ctx)
	entry := ProviderLog{
		ProviderID:   providerID,
		CreatedAt:    s.nowFn().UTC(),
		RequestID:    requestID,
		RequestBody:  encodeBody(requestBody),
		ResponseBody: encodeBody(responseBody),
	}
	cutoff := startOfDayUTC(s.nowFn)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("created_at < ?", cutoff).Delete(&ProviderLog{}).Error; err != nil {
			return err
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		s.logger.Error("failed to persist provider log",
			zap.String("provider_id", providerID),
			zap.Error(err),
		)
	}
}

// List 返回某提供者当天的痕迹，新的在前。
func (s *TraceStore) List(ctx context.Context, providerID string, limit int) ([]ProviderLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := startOfDayUTC(s.nowFn)

	var rows []ProviderLog
	err := s.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Where("created_at >= ?", cutoff).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]ProviderLogEntry, 0, len(rows))
	for _, row := range rows {
		reqBody := decodeBody(row.RequestBody)
		respBody := decodeBody(row.ResponseBody)
		entries = append(entries, ProviderLogEntry{
			ID:                 row.ID,
			CreatedAt:          row.CreatedAt.Format(time.RFC3339Nano),
			RequestID:          row.RequestID,
			RequestBody:        reqBody,
			ResponseBody:       respBody,
			RequestBodyPretty:  prettyBody(reqBody),
			ResponseBodyPretty: prettyBody(respBody),
		})
	}
	return entries, nil
}

// encodeBody 将痕迹体编码为 JSON 文本；
// 不可序列化时降级为字符串表示，再失败则为 null。
func encodeBody(payload any) *string {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data, err = json.Marshal(fmt.Sprint(payload))
		if err != nil {
			return nil
		}
	}
	text := string(data)
	return &text
}

func decodeBody(serialized *string) any {
	if serialized == nil || *serialized == "" {
		return nil
	}
	var value any
	if err := json.Unmarshal([]byte(*serialized), &value); err != nil {
		return *serialized
	}
	return value
}

func prettyBody(payload any) string {
	if payload == nil {
		return ""
	}
	if text, ok := payload.(string); ok {
		return text
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Sprint(payload)
	}
	return string(data)
}

// startOfDayUTC 返回今天 UTC 零点。
func startOfDayUTC(nowFn func() time.Time) time.Time {
	now := nowFn().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
