package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"aliasmail/backend/internal/cache"
	"aliasmail/backend/internal/domain"
	"aliasmail/backend/internal/storage"
)

// ErrAPIKeyInvalid API Key 不存在或关联用户不可用
var ErrAPIKeyInvalid = fmt.Errorf("%w: invalid api key", ErrUnauthorized)

// APIKeyStore API Key 服务依赖的存储
type APIKeyStore interface {
	storage.APIKeyRepository
	storage.UserRepository
}

// APIKeyService 负责 API Key 认证，签发由上游服务完成。
// 存储中只保存密钥的 blake2b 哈希。
type APIKeyService struct {
	store APIKeyStore
	cache *cache.LocalCache[*domain.User]
	log   *zap.Logger
	now   func() time.Time
}

// NewAPIKeyService 创建API Key服务，认证结果在本地缓存 cacheTTL
func NewAPIKeyService(ctx context.Context, store APIKeyStore, cacheTTL time.Duration, log *zap.Logger) *APIKeyService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &APIKeyService{
		store: store,
		cache: cache.NewLocalCache[*domain.User](ctx, 10000, cacheTTL),
		log:   log,
		now:   time.Now,
	}
}

// HashAPIKey 返回密钥的十六进制 blake2b-256 哈希
func HashAPIKey(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Authenticate 根据明文密钥返回关联的用户
func (s *APIKeyService) Authenticate(ctx context.Context, key string) (*domain.User, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrAPIKeyInvalid
	}

	hash := HashAPIKey(key)
	if user, ok := s.cache.Get(hash); ok {
		return user, nil
	}

	apiKey, err := s.store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			return nil, ErrAPIKeyInvalid
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}

	user, err := s.store.GetUserByID(ctx, apiKey.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrAPIKeyInvalid
		}
		return nil, fmt.Errorf("get user %d: %w", apiKey.UserID, err)
	}
	if !user.IsActive {
		return nil, ErrAPIKeyInvalid
	}

	// 更新失败不影响本次认证
	if err := s.store.UpdateAPIKeyLastUsed(ctx, apiKey.ID, s.now()); err != nil {
		s.log.Warn("update api key last used failed", zap.Uint("api_key_id", apiKey.ID), zap.Error(err))
	}

	s.cache.Set(hash, user, 0)
	return user, nil
}

// SeedDevKey 开发模式下确保给定邮箱的用户持有固定的 API Key。
// 已存在时直接返回对应用户。
func (s *APIKeyService) SeedDevKey(ctx context.Context, email, key string) (*domain.User, error) {
	hash := HashAPIKey(key)
	if apiKey, err := s.store.GetAPIKeyByHash(ctx, hash); err == nil {
		return s.store.GetUserByID(ctx, apiKey.UserID)
	} else if !errors.Is(err, storage.ErrAPIKeyNotFound) {
		return nil, fmt.Errorf("get api key: %w", err)
	}

	user := &domain.User{Email: strings.ToLower(email), Name: "dev", IsActive: true}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create dev user: %w", err)
	}
	if err := s.store.SaveAPIKey(ctx, &domain.APIKey{UserID: user.ID, CodeHash: hash, Name: "dev"}); err != nil {
		return nil, fmt.Errorf("save dev api key: %w", err)
	}
	s.log.Info("dev api key provisioned", zap.Uint("user_id", user.ID), zap.String("email", user.Email))
	return user, nil
}
