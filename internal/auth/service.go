package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"aliasmail/backend/internal/auth/jwt"
	"aliasmail/backend/internal/domain"
	"aliasmail/backend/internal/service"
	"aliasmail/backend/internal/storage"
)

var (
	// ErrMissingCredentials 请求未携带任何凭证
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrInvalidCredentials 凭证无效
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserInactive 用户已被禁用
	ErrUserInactive = errors.New("user is inactive")
	// ErrBearerDisabled 未配置 JWT 密钥时不接受 Bearer 令牌
	ErrBearerDisabled = fmt.Errorf("%w: bearer tokens are not accepted", ErrInvalidCredentials)
)

// Method 认证方式
type Method string

const (
	MethodAPIKey Method = "api_key"
	MethodBearer Method = "bearer"
)

// APIKeyAuthenticator 根据明文 API Key 返回用户
type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, key string) (*domain.User, error)
}

// UserRepository 用户存储接口
type UserRepository interface {
	GetUserByID(ctx context.Context, id uint) (*domain.User, error)
}

// Credentials 从请求头中提取的凭证
type Credentials struct {
	Method Method
	Value  string
}

// Service 认证服务，支持 API Key 与上游签发的 JWT 两种方式
type Service struct {
	apiKeys APIKeyAuthenticator
	tokens  *jwt.Manager
	users   UserRepository
}

// NewService 创建认证服务，tokens 为 nil 时只接受 API Key
func NewService(apiKeys APIKeyAuthenticator, tokens *jwt.Manager, users UserRepository) *Service {
	return &Service{
		apiKeys: apiKeys,
		tokens:  tokens,
		users:   users,
	}
}

// ParseCredentials 按优先级读取 Authentication、X-API-Key、Authorization 三个请求头
func ParseCredentials(authentication, apiKey, authorization string) (Credentials, error) {
	if v := strings.TrimSpace(authentication); v != "" {
		return Credentials{Method: MethodAPIKey, Value: v}, nil
	}
	if v := strings.TrimSpace(apiKey); v != "" {
		return Credentials{Method: MethodAPIKey, Value: v}, nil
	}
	if v := strings.TrimSpace(authorization); v != "" {
		parts := strings.SplitN(v, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return Credentials{}, ErrInvalidCredentials
		}
		return Credentials{Method: MethodBearer, Value: strings.TrimSpace(parts[1])}, nil
	}
	return Credentials{}, ErrMissingCredentials
}

// Authenticate 校验凭证并返回用户
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (*domain.User, error) {
	switch creds.Method {
	case MethodAPIKey:
		return s.authenticateAPIKey(ctx, creds.Value)
	case MethodBearer:
		return s.authenticateBearer(ctx, creds.Value)
	}
	return nil, ErrMissingCredentials
}

func (s *Service) authenticateAPIKey(ctx context.Context, key string) (*domain.User, error) {
	user, err := s.apiKeys.Authenticate(ctx, key)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) authenticateBearer(ctx context.Context, token string) (*domain.User, error) {
	if s.tokens == nil {
		return nil, ErrBearerDisabled
	}

	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user %d: %w", claims.UserID, err)
	}

	// 检查用户是否激活
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

// IsCredentialError 判断错误是否应以 401 返回
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrUserInactive)
}
