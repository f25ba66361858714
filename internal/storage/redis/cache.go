package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"aliasmail/backend/internal/domain"
)

// ErrCacheMiss 缓存中不存在
var ErrCacheMiss = errors.New("cache miss")

// Cache Redis 缓存实现，保存别名的 JSON 快照
type Cache struct {
	client goredis.Cmdable
	prefix string
}

// NewCache 创建 Redis 缓存实例
func NewCache(client goredis.Cmdable) *Cache {
	return &Cache{client: client, prefix: "aliasmail:"}
}

func (c *Cache) aliasKey(id uint) string {
	return fmt.Sprintf("%salias:%d", c.prefix, id)
}

// ========== 别名缓存 ==========

// SetAlias 缓存别名信息
func (c *Cache) SetAlias(ctx context.Context, alias *domain.Alias, ttl time.Duration) error {
	data, err := json.Marshal(alias)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.aliasKey(alias.ID), data, ttl).Err()
}

// GetAlias 获取缓存的别名信息
func (c *Cache) GetAlias(ctx context.Context, id uint) (*domain.Alias, error) {
	data, err := c.client.Get(ctx, c.aliasKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var alias domain.Alias
	if err := json.Unmarshal(data, &alias); err != nil {
		return nil, err
	}
	return &alias, nil
}

// DeleteAlias 删除缓存的别名信息
func (c *Cache) DeleteAlias(ctx context.Context, id uint) error {
	return c.client.Del(ctx, c.aliasKey(id)).Err()
}
