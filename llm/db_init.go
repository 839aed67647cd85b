package llm

import (
	"fmt"

	"gorm.io/gorm"
)

// InitDatabase 迁移编排核心拥有的两张表。
// SQLite 部署依赖 AutoMigrate；Postgres 部署另有 internal/migration
// 管理的 SQL 迁移，两者产生等价的表结构。
func InitDatabase(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&ProviderCredential{},
		&ProviderLog{},
	); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}
