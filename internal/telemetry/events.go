// Package telemetry 持久化编排器级别的结构化事件：
// 失败转移、终态失败、凭据变更与健康检查结果。
// 事件写入是尽力而为的，存储不可用绝不影响请求主路径。
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BaSui01/llmgateway/config"
	"github.com/BaSui01/llmgateway/internal/ctxkeys"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 事件级别。
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// 编排器事件种类。
const (
	KindProviderFail               = "provider_fail"
	KindProviderSwitched           = "provider_switched"
	KindRequestError               = "request_error"
	KindProviderCredentialsUpdated = "provider_credentials_updated"
	KindProviderCredentialsInvalid = "provider_credentials_invalid"
	KindProviderHealthOK           = "provider_health_ok"
	KindProviderHealthFail         = "provider_health_fail"
)

// OrchestratorEvent 事件表模型，按 ts 以及 (kind, ts) 建索引。
type OrchestratorEvent struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	Ts           time.Time `gorm:"column:ts;not null;index:ix_events_ts;index:ix_events_kind_ts,priority:2"`
	Level        string    `gorm:"column:level;type:varchar(16);not null"`
	Kind         string    `gorm:"column:kind;type:varchar(64);not null;index:ix_events_kind_ts,priority:1"`
	RequestID    string    `gorm:"column:request_id;type:varchar(64)"`
	ProviderFrom string    `gorm:"column:provider_from;type:varchar(100)"`
	ProviderTo   string    `gorm:"column:provider_to;type:varchar(100)"`
	Model        string    `gorm:"column:model;type:varchar(200)"`
	ErrorCode    string    `gorm:"column:error_code;type:varchar(128)"`
	Message      string    `gorm:"column:message;type:varchar(512)"`
	Meta         *string   `gorm:"column:meta;type:text"`
}

func (OrchestratorEvent) TableName() string { return "events" }

// Event 是一次 Record 调用的载荷。
type Event struct {
	Kind         string
	Level        string
	Message      string
	RequestID    string
	ProviderFrom string
	ProviderTo   string
	Model        string
	ErrorCode    string
	Meta         map[string]any
}

// EventRecord 是 ListRecent 返回的解码视图。
// meta 若为合法 JSON 则还原为结构化值，否则保留原始字符串。
type EventRecord struct {
	ID           uint   `json:"id"`
	Timestamp    string `json:"timestamp"`
	Level        string `json:"level"`
	Kind         string `json:"kind"`
	RequestID    string `json:"request_id,omitempty"`
	ProviderFrom string `json:"provider_from,omitempty"`
	ProviderTo   string `json:"provider_to,omitempty"`
	Model        string `json:"model,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	Message      string `json:"message,omitempty"`
	Meta         any    `json:"meta"`
}

// EventStore 带时间窗保留策略的事件存储。
// 保留窗口为今天 UTC 零点往前 (RetentionDays-1) 天，
// 每次读写都会顺带修剪窗口之外的行。
type EventStore struct {
	db            *gorm.DB
	enabled       bool
	retentionDays int
	logger        *zap.Logger
	nowFn         func() time.Time
}

// NewEventStore 创建事件存储。
func NewEventStore(db *gorm.DB, cfg config.EventsConfig, logger *zap.Logger) *EventStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	retention := cfg.RetentionDays
	if retention < 1 {
		retention = 2
	}
	return &EventStore{
		db:            db,
		enabled:       cfg.Enabled && db != nil,
		retentionDays: retention,
		logger:        logger.With(zap.String("component", "event_store")),
		nowFn:         time.Now,
	}
}

// InitDatabase 迁移事件表。
func InitDatabase(db *gorm.DB) error {
	return db.AutoMigrate(&OrchestratorEvent{})
}

// Enabled 返回事件持久化是否开启。
func (s *EventStore) Enabled() bool { return s != nil && s.enabled }

// Record 持久化一条事件并在同一事务中修剪过期行。
// 存储失败只记日志。request_id 缺省从 ctx 继承。
func (s *EventStore) Record(ctx context.Context, ev Event) {
	if !s.Enabled() {
		return
	}

	requestID := ev.RequestID
	if requestID == "" {
		requestID, _ = ctxkeys.RequestID(ctx)
	}

	row := OrchestratorEvent{
		Ts:           s.nowFn().UTC(),
		Level:        ev.Level,
		Kind:         ev.Kind,
		RequestID:    requestID,
		ProviderFrom: ev.ProviderFrom,
		ProviderTo:   ev.ProviderTo,
		Model:        ev.Model,
		ErrorCode:    ev.ErrorCode,
		Message:      ev.Message,
	}
	if len(ev.Meta) > 0 {
		if data, err := json.Marshal(ev.Meta); err == nil {
			text := string(data)
			row.Meta = &text
		}
	}

	cutoff := s.retentionCutoff()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Where("ts < ?", cutoff).Delete(&OrchestratorEvent{}).Error
	})
	if err != nil {
		s.logger.Error("failed to record event",
			zap.String("kind", ev.Kind),
			zap.Error(err),
		)
	}
}

// ListRecent 修剪后返回保留窗口内的事件，新的在前。
func (s *EventStore) ListRecent(ctx context.Context, limit int) ([]EventRecord, error) {
	if !s.Enabled() {
		return []EventRecord{}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	cutoff := s.retentionCutoff()
	if err := s.db.WithContext(ctx).Where("ts < ?", cutoff).Delete(&OrchestratorEvent{}).Error; err != nil {
		s.logger.Warn("failed to prune events", zap.Error(err))
	}

	var rows []OrchestratorEvent
	err := s.db.WithContext(ctx).
		Where("ts >= ?", cutoff).
		Order("ts DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]EventRecord, 0, len(rows))
	for _, row := range rows {
		var meta any
		if row.Meta != nil && *row.Meta != "" {
			if err := json.Unmarshal([]byte(*row.Meta), &meta); err != nil {
				meta = *row.Meta
			}
		}
		records = append(records, EventRecord{
			ID:           row.ID,
			Timestamp:    row.Ts.Format(time.RFC3339Nano),
			Level:        row.Level,
			Kind:         row.Kind,
			RequestID:    row.RequestID,
			ProviderFrom: row.ProviderFrom,
			ProviderTo:   row.ProviderTo,
			Model:        row.Model,
			ErrorCode:    row.ErrorCode,
			Message:      row.Message,
			Meta:         meta,
		})
	}
	return records, nil
}

// retentionCutoff 返回必须保留的最早 ts：
// 今天 UTC 零点 − (retentionDays−1) 天。
func (s *EventStore) retentionCutoff() time.Time {
	now := s.nowFn().UTC()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return startOfToday.AddDate(0, 0, -(s.retentionDays - 1))
}
