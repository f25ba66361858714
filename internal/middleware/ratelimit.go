package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"aliasmail/backend/internal/config"
	"aliasmail/backend/internal/monitoring"
)

// RateLimiter 按调用方限流，已认证请求按用户ID，其余按客户端IP
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	metrics  *monitoring.Metrics
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter 创建限流器，ctx 结束时停止清理协程
func NewRateLimiter(ctx context.Context, cfg config.RateLimitConfig, metrics *monitoring.Metrics) *RateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.RequestsPerSecond) + 1
	}
	rl := &RateLimiter{
		limiters: make(map[string]*visitor),
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    burst,
		idle:     10 * time.Minute,
		metrics:  metrics,
	}
	go rl.cleanupLoop(ctx, time.Minute)
	return rl
}

// Middleware 返回 gin 中间件，需放在认证中间件之后
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}

		key, limitType := "ip:"+c.ClientIP(), "ip"
		if user, ok := CurrentUser(c); ok {
			key, limitType = fmt.Sprintf("user:%d", user.ID), "user"
		}

		if !rl.allow(key) {
			rl.metrics.RecordRateLimitBlock(limitType)
			c.Header("Retry-After", strconv.Itoa(1))
			abortWithMessage(c, http.StatusTooManyRequests, "请求过于频繁")
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.limiters[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

func (rl *RateLimiter) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mu.Lock()
			for key, v := range rl.limiters {
				if time.Since(v.lastSeen) > rl.idle {
					delete(rl.limiters, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
