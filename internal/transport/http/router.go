package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aliasmail/backend/internal/config"
	"aliasmail/backend/internal/health"
	"aliasmail/backend/internal/middleware"
	"aliasmail/backend/internal/monitoring"
	"aliasmail/backend/internal/service"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	aliases    *service.AliasService
	contacts   *service.ContactService
	activities *service.ActivityService
	log        *zap.Logger
}

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config          *config.Config
	AliasService    *service.AliasService
	ContactService  *service.ContactService
	ActivityService *service.ActivityService
	Authenticator   *middleware.Authenticator
	RateLimiter     *middleware.RateLimiter // 可选
	Health          *health.HealthChecker   // 可选
	Metrics         *monitoring.Metrics     // 可选，为空时不暴露 /metrics
	Logger          *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()
	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)

	router.Use(monitor.PanicRecovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Authentication", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"*"}
	}
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowAllOrigins = true
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := &Handler{
		aliases:    deps.AliasService,
		contacts:   deps.ContactService,
		activities: deps.ActivityService,
		log:        deps.Logger,
	}

	// 健康检查
	if deps.Health != nil {
		router.GET("/health", func(c *gin.Context) {
			results, healthy := deps.Health.CheckHealth(c.Request.Context())
			status := http.StatusOK
			if !healthy {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, results)
		})
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	if deps.Metrics != nil {
		router.GET("/metrics", monitor.SystemMetrics(), gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// ========== API Routes（需要认证） ==========
	api := router.Group("/api")
	api.Use(deps.Authenticator.RequireUser())
	if deps.RateLimiter != nil {
		api.Use(deps.RateLimiter.Middleware())
	}
	{
		api.GET("/aliases", handler.listAliases)
		api.DELETE("/aliases/:id", handler.deleteAlias)
		api.PUT("/aliases/:id", handler.updateAlias)
		api.POST("/aliases/:id/toggle", handler.toggleAlias)
		api.GET("/aliases/:id/activities", handler.listActivities)
		api.GET("/aliases/:id/contacts", handler.listContacts)
		api.POST("/aliases/:id/contacts", handler.createContact)
	}

	return router
}
