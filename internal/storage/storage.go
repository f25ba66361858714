package storage

import (
	"context"
	"errors"
	"time"

	"aliasmail/backend/internal/domain"
)

var (
	// ErrAliasNotFound 别名未找到，或不属于给定用户
	ErrAliasNotFound = errors.New("alias not found")
	// ErrAliasExists 别名地址已存在
	ErrAliasExists = errors.New("alias already exists")
	// ErrContactNotFound 联系人未找到
	ErrContactNotFound = errors.New("contact not found")
	// ErrContactExists 同一别名下通信方地址重复
	ErrContactExists = errors.New("contact already exists")
	// ErrReplyEmailExists 反向别名地址重复
	ErrReplyEmailExists = errors.New("reply email already exists")
	// ErrEmailLogNotFound 邮件日志未找到
	ErrEmailLogNotFound = errors.New("email log not found")
	// ErrUserNotFound 用户未找到
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists 用户邮箱已存在
	ErrUserExists = errors.New("user already exists")
	// ErrAPIKeyNotFound API Key 未找到
	ErrAPIKeyNotFound = errors.New("api key not found")
	// ErrAPIKeyExists API Key 哈希重复
	ErrAPIKeyExists = errors.New("api key already exists")
)

// AliasRepository 定义别名数据存取操作。
// 变更操作同时按 id 和 user_id 定位，不属于该用户时返回 ErrAliasNotFound。
type AliasRepository interface {
	CreateAlias(ctx context.Context, alias *domain.Alias) error
	GetAlias(ctx context.Context, id uint) (*domain.Alias, error)
	ListAliasesByUser(ctx context.Context, userID uint, offset, limit int) ([]*domain.Alias, error)
	ToggleAlias(ctx context.Context, id, userID uint) (*domain.Alias, error)
	UpdateAliasNote(ctx context.Context, id, userID uint, note *string) (*domain.Alias, error)
	DeleteAlias(ctx context.Context, id, userID uint) error // 级联删除联系人与日志
}

// ContactRepository 定义联系人数据存取操作。
type ContactRepository interface {
	// CreateContact 插入联系人，唯一约束冲突映射为 ErrContactExists 或 ErrReplyEmailExists
	CreateContact(ctx context.Context, contact *domain.Contact) error
	GetContactByAliasAndEmail(ctx context.Context, aliasID uint, websiteEmail string) (*domain.Contact, error)
	ReplyEmailExists(ctx context.Context, replyEmail string) (bool, error)
	ListContactsByAlias(ctx context.Context, aliasID uint, offset, limit int) ([]*domain.Contact, error)
}

// EmailLogRepository 定义邮件日志读取操作。
type EmailLogRepository interface {
	CreateEmailLog(ctx context.Context, log *domain.EmailLog) error
	// ListAliasLogs 按 created_at、id 倒序返回别名的日志及通信方信息
	ListAliasLogs(ctx context.Context, aliasID uint, offset, limit int) ([]domain.AliasLog, error)
	// LastReplyLog 返回联系人最近一条回复日志，没有时返回 ErrEmailLogNotFound
	LastReplyLog(ctx context.Context, contactID uint) (*domain.EmailLog, error)
	CountLogFlags(ctx context.Context, aliasIDs []uint) ([]domain.LogFlagCount, error)
}

// UserRepository 定义用户数据存取操作。
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id uint) (*domain.User, error)
}

// APIKeyRepository 定义API Key数据存取操作。
type APIKeyRepository interface {
	SaveAPIKey(ctx context.Context, apiKey *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, codeHash string) (*domain.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uint, at time.Time) error
}

// Store 定义完整的存储接口。
type Store interface {
	AliasRepository
	ContactRepository
	EmailLogRepository
	UserRepository
	APIKeyRepository

	// 工具方法
	Close() error
	Health(ctx context.Context) error
}
