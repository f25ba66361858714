package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aliasmail/backend/internal/auth"
	jwtpkg "aliasmail/backend/internal/auth/jwt"
	"aliasmail/backend/internal/config"
	"aliasmail/backend/internal/health"
	"aliasmail/backend/internal/logger"
	"aliasmail/backend/internal/middleware"
	"aliasmail/backend/internal/monitoring"
	"aliasmail/backend/internal/service"
	"aliasmail/backend/internal/storage"
	"aliasmail/backend/internal/storage/hybrid"
	"aliasmail/backend/internal/storage/memory"
	"aliasmail/backend/internal/storage/postgres"
	"aliasmail/backend/internal/storage/redis"
	httptransport "aliasmail/backend/internal/transport/http"
)

// main 启动别名管理 HTTP API 服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting aliasmail server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("database", cfg.Database.Type),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server exited cleanly")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	metrics := monitoring.NewMetrics()

	store, redisClient, err := initializeStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close storage", zap.Error(err))
		}
	}()

	healthChecker := health.NewHealthChecker(store, log)
	if redisClient != nil {
		healthChecker.AddDependency("redis", health.PingFunc(redisClient.Ping))
	}

	// 初始化服务层
	aliasService := service.NewAliasService(store, cfg.Alias, metrics, log)
	generator := service.NewReverseAliasGenerator(cfg.Alias, metrics)
	contactService := service.NewContactService(aliasService, store, generator, cfg.Alias, metrics, log)
	activityService := service.NewActivityService(aliasService, store, cfg.Alias, metrics, log)
	apiKeyService := service.NewAPIKeyService(ctx, store, cfg.Auth.CacheTTL, log)

	// 开发环境预置用户与 API Key
	if cfg.Auth.DevAPIKey != "" {
		user, err := apiKeyService.SeedDevKey(ctx, cfg.Auth.DevUserEmail, cfg.Auth.DevAPIKey)
		if err != nil {
			return fmt.Errorf("seed dev api key: %w", err)
		}
		log.Warn("dev api key enabled, do not use in production", zap.Uint("user_id", user.ID))
	}

	var jwtManager *jwtpkg.Manager
	if cfg.JWT.Secret != "" {
		jwtManager = jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer)
		log.Info("bearer token authentication enabled", zap.String("issuer", cfg.JWT.Issuer))
	}
	authService := auth.NewService(apiKeyService, jwtManager, store)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:          cfg,
		AliasService:    aliasService,
		ContactService:  contactService,
		ActivityService: activityService,
		Authenticator:   middleware.NewAuthenticator(authService, metrics, log),
		RateLimiter:     middleware.NewRateLimiter(ctx, cfg.RateLimit, metrics),
		Health:          healthChecker,
		Metrics:         metrics,
		Logger:          log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	return group.Wait()
}

// initializeStorage 根据配置创建存储，启用 Redis 时在外层包裹别名缓存
func initializeStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, *redis.Client, error) {
	var db storage.Store
	if cfg.Database.Type == config.DatabaseMemory {
		log.Info("using memory storage (development mode)")
		db = memory.NewStore()
	} else {
		store, err := openDatabase(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
		db = store
	}

	if !cfg.Redis.Enabled {
		return db, nil, nil
	}

	redisClient, err := redis.New(ctx, cfg.Redis, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	cache := redis.NewCache(redisClient.Client())
	return hybrid.NewStore(db, cache, cfg.Redis.CacheTTL, log, redisClient.Close), redisClient, nil
}

// openDatabase 连接数据库，失败时按指数退避重试
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*postgres.Store, error) {
	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	attempts := cfg.ConnectRetries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		store, err := postgres.Open(ctx, cfg, log)
		if err == nil {
			return store, nil
		}
		lastErr = err

		wait := b.Duration()
		log.Warn("database connection failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("connect to %s after %d attempts: %w", cfg.Type, attempts, lastErr)
}
