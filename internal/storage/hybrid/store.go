package hybrid

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"aliasmail/backend/internal/domain"
	"aliasmail/backend/internal/storage"
)

// AliasCache 别名缓存，Redis 实现见 storage/redis
type AliasCache interface {
	GetAlias(ctx context.Context, id uint) (*domain.Alias, error)
	SetAlias(ctx context.Context, alias *domain.Alias, ttl time.Duration) error
	DeleteAlias(ctx context.Context, id uint) error
}

// Store 混合存储实现，结合关系型数据库和 Redis。
// 只有按 ID 读取别名走缓存，别名的每次变更都会删除缓存。
type Store struct {
	storage.Store

	cache AliasCache
	ttl   time.Duration
	group singleflight.Group
	log   *zap.Logger

	closers []func() error
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建混合存储实例，closers 在 Close 时依次调用
func NewStore(db storage.Store, cache AliasCache, ttl time.Duration, log *zap.Logger, closers ...func() error) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{
		Store:   db,
		cache:   cache,
		ttl:     ttl,
		log:     log,
		closers: closers,
	}
}

// ========== Alias Repository ==========

// GetAlias 先查缓存，未命中时合并并发请求回源数据库
func (s *Store) GetAlias(ctx context.Context, id uint) (*domain.Alias, error) {
	if alias, err := s.cache.GetAlias(ctx, id); err == nil {
		return alias, nil
	}

	v, err, _ := s.group.Do(flightKey(id), func() (any, error) {
		alias, err := s.Store.GetAlias(ctx, id)
		if err != nil {
			return nil, err
		}
		// 缓存失败不影响主流程
		if err := s.cache.SetAlias(ctx, alias, s.ttl); err != nil {
			s.log.Warn("failed to cache alias", zap.Uint("alias_id", id), zap.Error(err))
		}
		return alias, nil
	})
	if err != nil {
		return nil, err
	}

	cp := *v.(*domain.Alias)
	return &cp, nil
}

// ToggleAlias 翻转启用状态并使缓存失效
func (s *Store) ToggleAlias(ctx context.Context, id, userID uint) (*domain.Alias, error) {
	alias, err := s.Store.ToggleAlias(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return alias, nil
}

// UpdateAliasNote 更新备注并使缓存失效
func (s *Store) UpdateAliasNote(ctx context.Context, id, userID uint, note *string) (*domain.Alias, error) {
	alias, err := s.Store.UpdateAliasNote(ctx, id, userID, note)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return alias, nil
}

// DeleteAlias 删除别名并使缓存失效
func (s *Store) DeleteAlias(ctx context.Context, id, userID uint) error {
	if err := s.Store.DeleteAlias(ctx, id, userID); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// invalidate 删除缓存并丢弃进行中的回源，避免删除前读到的别名被共享给后续调用
//
// 删除前已经开始的回源仍可能写回旧值，联系人写入由底层存储再次校验别名。
func (s *Store) invalidate(ctx context.Context, id uint) {
	s.group.Forget(flightKey(id))
	if err := s.cache.DeleteAlias(ctx, id); err != nil {
		s.log.Warn("failed to invalidate alias cache", zap.Uint("alias_id", id), zap.Error(err))
	}
}

func flightKey(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// ========== 工具方法 ==========

// Close 关闭数据库与缓存连接
func (s *Store) Close() error {
	err := s.Store.Close()
	for _, closeFn := range s.closers {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
