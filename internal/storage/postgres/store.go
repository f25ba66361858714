package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"aliasmail/backend/internal/config"
	"aliasmail/backend/internal/domain"
	"aliasmail/backend/internal/storage"
)

// Store 基于 GORM 的关系型存储实现，支持 PostgreSQL、MySQL 和 SQLite
type Store struct {
	db     *gorm.DB
	client *Client // 仅 PostgreSQL 使用
	log    *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// Open 根据数据库配置创建存储实例
func Open(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	switch cfg.Type {
	case config.DatabasePostgres:
		client, err := NewClient(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		store, err := NewStoreWithDialector(postgres.New(postgres.Config{Conn: client.SQLDB()}), cfg, log)
		if err != nil {
			client.Close()
			return nil, err
		}
		store.client = client
		return store, nil
	case config.DatabaseMySQL:
		return NewStoreWithDialector(mysql.Open(cfg.DSN), cfg, log)
	case config.DatabaseSQLite:
		return NewStoreWithDialector(sqlite.Open(cfg.DSN), cfg, log)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

// NewStoreWithDialector 使用指定的GORM dialector创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 静默模式
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &Store{db: db, log: log}

	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&domain.APIKey{},
		&domain.Alias{},
		&domain.Contact{},
		&domain.EmailLog{},
	)
}

// ========== Alias Repository ==========

// CreateAlias 保存别名
func (s *Store) CreateAlias(ctx context.Context, alias *domain.Alias) error {
	err := s.db.WithContext(ctx).Create(alias).Error
	return uniqueError(err, storage.ErrAliasExists)
}

// GetAlias 根据 ID 获取别名
func (s *Store) GetAlias(ctx context.Context, id uint) (*domain.Alias, error) {
	var alias domain.Alias
	err := s.db.WithContext(ctx).First(&alias, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrAliasNotFound
		}
		return nil, err
	}
	return &alias, nil
}

// ListAliasesByUser 按创建时间倒序列出用户的别名
func (s *Store) ListAliasesByUser(ctx context.Context, userID uint, offset, limit int) ([]*domain.Alias, error) {
	var aliases []*domain.Alias
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&aliases).Error
	return aliases, err
}

// ToggleAlias 在事务内翻转启用状态并返回最新值
func (s *Store) ToggleAlias(ctx context.Context, id, userID uint) (*domain.Alias, error) {
	return s.mutateAlias(ctx, id, userID, map[string]any{"enabled": gorm.Expr("NOT enabled")})
}

// UpdateAliasNote 替换备注，note 为 nil 时清空
func (s *Store) UpdateAliasNote(ctx context.Context, id, userID uint, note *string) (*domain.Alias, error) {
	var value any = gorm.Expr("NULL")
	if note != nil {
		value = *note
	}
	return s.mutateAlias(ctx, id, userID, map[string]any{"note": value})
}

// mutateAlias 以 id 和 user_id 同时作为条件更新，保证所有权检查与写入原子
func (s *Store) mutateAlias(ctx context.Context, id, userID uint, updates map[string]any) (*domain.Alias, error) {
	var alias domain.Alias
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&domain.Alias{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(updates).Error
		if err != nil {
			return err
		}
		// MySQL 对未变化的行返回 0，因此用带所有者条件的读取判断是否命中
		err = tx.Where("id = ? AND user_id = ?", id, userID).First(&alias).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return storage.ErrAliasNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &alias, nil
}

// DeleteAlias 在同一事务内删除别名及其联系人和日志
func (s *Store) DeleteAlias(ctx context.Context, id, userID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Alias{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrAliasNotFound
		}
		if err := tx.Where("gen_email_id = ?", id).Delete(&domain.EmailLog{}).Error; err != nil {
			return err
		}
		return tx.Where("gen_email_id = ?", id).Delete(&domain.Contact{}).Error
	})
}

// ========== Contact Repository ==========

// CreateContact 插入联系人，唯一索引负责最终的去重
//
// 插入与别名存在性检查在同一事务内完成，PostgreSQL/MySQL 对别名行加共享锁，
// 与 DeleteAlias 的级联删除互斥。
func (s *Store) CreateContact(ctx context.Context, contact *domain.Contact) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&domain.Alias{}).Where("id = ?", contact.AliasID)
		if s.db.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "SHARE"})
		}
		var ids []uint
		if err := q.Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return storage.ErrAliasNotFound
		}
		return tx.Create(contact).Error
	})
	if err != nil {
		return contactError(err)
	}
	return nil
}

// GetContactByAliasAndEmail 按 (别名, 通信方地址) 查找联系人
func (s *Store) GetContactByAliasAndEmail(ctx context.Context, aliasID uint, websiteEmail string) (*domain.Contact, error) {
	var contact domain.Contact
	err := s.db.WithContext(ctx).
		Where("gen_email_id = ? AND website_email = ?", aliasID, websiteEmail).
		First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrContactNotFound
		}
		return nil, err
	}
	return &contact, nil
}

// ReplyEmailExists 检查反向别名是否已被占用
func (s *Store) ReplyEmailExists(ctx context.Context, replyEmail string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&domain.Contact{}).
		Where("reply_email = ?", replyEmail).
		Count(&count).Error
	return count > 0, err
}

// ListContactsByAlias 按ID倒序列出别名的联系人
func (s *Store) ListContactsByAlias(ctx context.Context, aliasID uint, offset, limit int) ([]*domain.Contact, error) {
	var contacts []*domain.Contact
	err := s.db.WithContext(ctx).
		Where("gen_email_id = ?", aliasID).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&contacts).Error
	return contacts, err
}

// ========== EmailLog Repository ==========

// aliasLogRow 日志与联系人的联表结果，联系人可能不存在
type aliasLogRow struct {
	ID           uint
	CreatedAt    time.Time
	IsReply      bool
	Blocked      bool
	Bounced      bool
	WebsiteEmail *string
	WebsiteFrom  *string
}

// CreateEmailLog 追加一条日志
func (s *Store) CreateEmailLog(ctx context.Context, log *domain.EmailLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

// ListAliasLogs 返回别名日志及通信方信息，最近的在前
func (s *Store) ListAliasLogs(ctx context.Context, aliasID uint, offset, limit int) ([]domain.AliasLog, error) {
	var rows []aliasLogRow
	err := s.db.WithContext(ctx).
		Table("email_logs").
		Select("email_logs.id, email_logs.created_at, email_logs.is_reply, email_logs.blocked, email_logs.bounced, contacts.website_email, contacts.website_from").
		Joins("LEFT JOIN contacts ON contacts.id = email_logs.contact_id").
		Where("email_logs.gen_email_id = ?", aliasID).
		Order("email_logs.created_at DESC").
		Order("email_logs.id DESC").
		Offset(offset).
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.AliasLog, 0, len(rows))
	for _, row := range rows {
		l := domain.AliasLog{
			ID:      row.ID,
			When:    row.CreatedAt,
			IsReply: row.IsReply,
			Blocked: row.Blocked,
			Bounced: row.Bounced,
		}
		if row.WebsiteEmail != nil {
			l.WebsiteEmail = *row.WebsiteEmail
		}
		if row.WebsiteFrom != nil {
			l.WebsiteFrom = *row.WebsiteFrom
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// LastReplyLog 返回联系人最近一条回复日志
func (s *Store) LastReplyLog(ctx context.Context, contactID uint) (*domain.EmailLog, error) {
	var log domain.EmailLog
	err := s.db.WithContext(ctx).
		Where("contact_id = ? AND is_reply = ?", contactID, true).
		Order("created_at DESC").
		Order("id DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrEmailLogNotFound
		}
		return nil, err
	}
	return &log, nil
}

// CountLogFlags 按别名和标志位分组计数
func (s *Store) CountLogFlags(ctx context.Context, aliasIDs []uint) ([]domain.LogFlagCount, error) {
	if len(aliasIDs) == 0 {
		return nil, nil
	}

	var counts []domain.LogFlagCount
	err := s.db.WithContext(ctx).
		Model(&domain.EmailLog{}).
		Select("gen_email_id, is_reply, bounced, blocked, COUNT(*) AS count").
		Where("gen_email_id IN ?", aliasIDs).
		Group("gen_email_id, is_reply, bounced, blocked").
		Scan(&counts).Error
	return counts, err
}

// ========== User Repository ==========

// CreateUser 创建用户
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	err := s.db.WithContext(ctx).Create(user).Error
	return uniqueError(err, storage.ErrUserExists)
}

// GetUserByID 根据 ID 获取用户
func (s *Store) GetUserByID(ctx context.Context, id uint) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ========== APIKey Repository ==========

// SaveAPIKey 保存API Key
func (s *Store) SaveAPIKey(ctx context.Context, apiKey *domain.APIKey) error {
	err := s.db.WithContext(ctx).Create(apiKey).Error
	return uniqueError(err, storage.ErrAPIKeyExists)
}

// GetAPIKeyByHash 按密钥哈希查找
func (s *Store) GetAPIKeyByHash(ctx context.Context, codeHash string) (*domain.APIKey, error) {
	var apiKey domain.APIKey
	err := s.db.WithContext(ctx).Where("code_hash = ?", codeHash).First(&apiKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrAPIKeyNotFound
		}
		return nil, err
	}
	return &apiKey, nil
}

// UpdateAPIKeyLastUsed 更新最后使用时间
func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id uint, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&domain.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrAPIKeyNotFound
	}
	return nil
}

// ========== 工具方法 ==========

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	if s.client != nil {
		s.client.Close()
	}
	return err
}

// Health 健康检查
func (s *Store) Health(ctx context.Context) error {
	if s.client != nil {
		return s.client.Ping(ctx)
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
