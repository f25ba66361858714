package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aliasmail/backend/internal/auth"
	"aliasmail/backend/internal/auth/jwt"
	"aliasmail/backend/internal/config"
	"aliasmail/backend/internal/domain"
	"aliasmail/backend/internal/monitoring"
	"aliasmail/backend/internal/service"
	"aliasmail/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type authFixture struct {
	router *gin.Engine
	user   *domain.User
	tokens *jwt.Manager
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := memory.NewStore()
	user := &domain.User{Email: "u@example.com", IsActive: true}
	require.NoError(t, store.CreateUser(context.Background(), user))
	require.NoError(t, store.SaveAPIKey(context.Background(), &domain.APIKey{UserID: user.ID, CodeHash: service.HashAPIKey("good-key")}))

	tokens := jwt.NewManager(strings.Repeat("s", 32), "")
	apiKeys := service.NewAPIKeyService(ctx, store, time.Minute, zap.NewNop())
	authn := NewAuthenticator(auth.NewService(apiKeys, tokens, store), nil, zap.NewNop())

	router := gin.New()
	router.Use(authn.RequireUser())
	router.GET("/me", func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": u.ID})
	})
	return &authFixture{router: router, user: user, tokens: tokens}
}

func TestAuthenticator_RequireUser(t *testing.T) {
	f := newAuthFixture(t)
	bearer, err := f.tokens.GenerateToken(f.user.ID, f.user.Email, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"authentication header", "Authentication", "good-key", http.StatusOK},
		{"x-api-key header", "X-API-Key", "good-key", http.StatusOK},
		{"bearer token", "Authorization", "Bearer " + bearer, http.StatusOK},
		{"wrong key", "Authentication", "bad-key", http.StatusUnauthorized},
		{"bad bearer", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"no credentials", "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRateLimiter_BlocksPerUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetricsWith(reg, reg)
	rl := NewRateLimiter(ctx, config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2}, metrics)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if c.GetHeader("X-User") == "1" {
			c.Set(ContextUserKey, &domain.User{ID: 1})
		} else {
			c.Set(ContextUserKey, &domain.User{ID: 2})
		}
	}, rl.Middleware())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-User", "1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// 其他用户不受影响
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), SecurityHeaders())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestPanicRecovery(t *testing.T) {
	mm := NewMonitoringMiddleware(nil, zap.NewNop())
	router := gin.New()
	router.Use(mm.PanicRecovery())
	router.GET("/", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"code":500`)
}

func TestBodySizeLimit(t *testing.T) {
	router := gin.New()
	router.Use(BodySizeLimit(8))
	router.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
