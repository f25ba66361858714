package domain

import "time"

// APIKey API密钥实体，只保存密钥的哈希
type APIKey struct {
	ID         uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID     uint       `json:"user_id" gorm:"index;not null"`
	CodeHash   string     `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"` // blake2b-256 十六进制
	Name       string     `json:"name" gorm:"type:varchar(128)"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"` // 最后使用时间
}

// TableName 指定表名
func (APIKey) TableName() string {
	return "api_keys"
}
