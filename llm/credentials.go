package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProviderCredential 每个提供者至多一行的凭据记录。
// 不变式: last_error_at 为空当且仅当 last_error 为空。
type ProviderCredential struct {
	ID          uint       `gorm:"primaryKey;autoIncrement"`
	ProviderID  string     `gorm:"column:provider_id;type:varchar(100);not null;uniqueIndex:uq_provider_credentials_provider_id"`
	APIKey      string     `gorm:"column:api_key;type:varchar(512);not null"`
	LastError   *string    `gorm:"column:last_error;type:varchar(255)"`
	LastErrorAt *time.Time `gorm:"column:last_error_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProviderCredential) TableName() string { return "provider_credentials" }

// HasAPIKey 返回是否存有非空 key。
func (c *ProviderCredential) HasAPIKey() bool { return c != nil && c.APIKey != "" }

// String 脱敏输出，API Key 永不进入日志。
func (c ProviderCredential) String() string {
	if c.APIKey == "" {
		return "ProviderCredential{" + c.ProviderID + "}"
	}
	return "ProviderCredential{" + c.ProviderID + ", APIKey:***}"
}

// KeyCache 是凭据读路径的可选缓存。实现必须容忍不可用的后端
// （直接回退到数据库），见 internal/cache。
type KeyCache interface {
	GetAPIKey(ctx context.Context, providerID string) (string, bool)
	SetAPIKey(ctx context.Context, providerID, apiKey string)
	Invalidate(ctx context.Context, providerID string)
}

// CredentialStore 持久化每个提供者的 API Key 与最近错误状态。
// 所有写操作都是单行事务；并发写以行为粒度由数据库串行化，
// 读允许相对在途写滞后。
type CredentialStore struct {
	db     *gorm.DB
	cache  KeyCache
	logger *zap.Logger
	nowFn  func() time.Time
}

// NewCredentialStore 创建凭据存储。
func NewCredentialStore(db *gorm.DB, logger *zap.Logger) *CredentialStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialStore{
		db:     db,
		logger: logger.With(zap.String("component", "credential_store")),
		nowFn:  time.Now,
	}
}

// UseCache 启用读路径缓存；写路径会同步失效对应条目。
func (s *CredentialStore) UseCache(cache KeyCache) { s.cache = cache }

// Upsert 创建或整行替换凭据，并原子地清除错误字段。
func (s *CredentialStore) Upsert(ctx context.Context, providerID, apiKey string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ProviderCredential
		err := tx.Where("provider_id = ?", providerID).First(&existing).Error
		switch {
		case err == nil:
			return tx.Model(&ProviderCredential{}).
				Where("id = ?", existing.ID).
				Updates(map[string]any{
					"api_key":       apiKey,
					"last_error":    nil,
					"last_error_at": nil,
				}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&ProviderCredential{ProviderID: providerID, APIKey: apiKey}).Error
		default:
			return err
		}
	})
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, providerID)
	}
	return nil
}

// APIKey 返回存储的 key；无记录时返回空串。
func (s *CredentialStore) APIKey(ctx context.Context, providerID string) (string, error) {
	if s.cache != nil {
		if key, ok := s.cache.GetAPIKey(ctx, providerID); ok {
			return key, nil
		}
	}

	var cred ProviderCredential
	err := s.db.WithContext(ctx).Where("provider_id = ?", providerID).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if s.cache != nil && cred.APIKey != "" {
		s.cache.SetAPIKey(ctx, providerID, cred.APIKey)
	}
	return cred.APIKey, nil
}

// RecordError 记录最近一次失败；无记录时创建空 key 的行。
func (s *CredentialStore) RecordError(ctx context.Context, providerID, code string) error {
	now := s.nowFn().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ProviderCredential
		err := tx.Where("provider_id = ?", providerID).First(&existing).Error
		switch {
		case err == nil:
			return tx.Model(&ProviderCredential{}).
				Where("id = ?", existing.ID).
				Updates(map[string]any{
					"last_error":    code,
					"last_error_at": now,
				}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&ProviderCredential{
				ProviderID:  providerID,
				APIKey:      "",
				LastError:   &code,
				LastErrorAt: &now,
			}).Error
		default:
			return err
		}
	})
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, providerID)
	}
	return nil
}

// ClearError 清除错误字段；记录不存在或本就干净时是空操作。
// 竞争语义为行级 last-writer-wins。
func (s *CredentialStore) ClearError(ctx context.Context, providerID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ProviderCredential
		err := tx.Where("provider_id = ?", providerID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if existing.LastError == nil {
			return nil
		}
		return tx.Model(&ProviderCredential{}).
			Where("id = ?", existing.ID).
			Updates(map[string]any{
				"last_error":    nil,
				"last_error_at": nil,
			}).Error
	})
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, providerID)
	}
	return nil
}

// List 返回全部凭据行（含错误状态），供注册表与管理面板合并。
func (s *CredentialStore) List(ctx context.Context) ([]ProviderCredential, error) {
	var rows []ProviderCredential
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Delete 删除凭据行，返回是否确有删除。
func (s *CredentialStore) Delete(ctx context.Context, providerID string) (bool, error) {
	res := s.db.WithContext(ctx).Where("provider_id = ?", providerID).Delete(&ProviderCredential{})
	if res.Error != nil {
		return false, res.Error
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, providerID)
	}
	return res.RowsAffected > 0, nil
}
