package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aliasmail/backend/internal/auth"
	"aliasmail/backend/internal/domain"
	"aliasmail/backend/internal/monitoring"
)

const (
	// ContextUserKey 上下文中保存当前用户的键
	ContextUserKey = "user"
	// ContextUserIDKey 上下文中保存当前用户ID的键
	ContextUserIDKey = "userID"
)

// Authenticator 认证中间件
type Authenticator struct {
	service *auth.Service
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewAuthenticator 创建认证中间件
func NewAuthenticator(service *auth.Service, metrics *monitoring.Metrics, log *zap.Logger) *Authenticator {
	return &Authenticator{
		service: service,
		metrics: metrics,
		log:     log,
	}
}

// RequireUser 要求请求携带有效的 API Key 或 Bearer 令牌
func (a *Authenticator) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		creds, err := auth.ParseCredentials(
			c.GetHeader("Authentication"),
			c.GetHeader("X-API-Key"),
			c.GetHeader("Authorization"),
		)
		if err != nil {
			a.metrics.RecordAuthFailure("missing")
			abortWithMessage(c, http.StatusUnauthorized, "需要认证")
			return
		}

		user, err := a.service.Authenticate(c.Request.Context(), creds)
		if err != nil {
			if auth.IsCredentialError(err) {
				a.metrics.RecordAuthFailure(string(creds.Method))
				a.log.Debug("authentication failed",
					zap.String("method", string(creds.Method)),
					zap.String("ip", c.ClientIP()),
					zap.Error(err),
				)
				abortWithMessage(c, http.StatusUnauthorized, "认证失败")
				return
			}
			a.log.Error("authentication error", zap.Error(err))
			abortWithMessage(c, http.StatusInternalServerError, "服务器内部错误")
			return
		}

		// 将用户信息存储到上下文
		c.Set(ContextUserKey, user)
		c.Set(ContextUserIDKey, user.ID)

		c.Next()
	}
}

// CurrentUser 返回认证中间件写入的用户
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*domain.User)
	return user, ok && user != nil
}

// abortWithMessage 以统一结构中止请求
func abortWithMessage(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code": status,
		"msg":  msg,
	})
}
