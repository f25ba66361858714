package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// Pinger 可探测连通性的依赖
type Pinger interface {
	Health(ctx context.Context) error
}

// PingFunc 将函数适配为 Pinger
type PingFunc func(ctx context.Context) error

// Health 实现 Pinger
func (f PingFunc) Health(ctx context.Context) error { return f(ctx) }

// HealthChecker 健康检查器
type HealthChecker struct {
	health  healthcheck.Handler
	deps    map[string]Pinger
	order   []string
	timeout time.Duration
	logger  *zap.Logger
}

// NewHealthChecker 创建健康检查器，store 作为 database 依赖注册
func NewHealthChecker(store Pinger, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health:  healthcheck.NewHandler(),
		deps:    make(map[string]Pinger),
		timeout: 2 * time.Second,
		logger:  logger,
	}

	// 协程数量过多视为进程异常
	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	hc.AddDependency("database", store)

	return hc
}

// AddDependency 注册一个就绪检查依赖
func (hc *HealthChecker) AddDependency(name string, dep Pinger) {
	hc.deps[name] = dep
	hc.order = append(hc.order, name)
	hc.health.AddReadinessCheck(name, healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), hc.timeout)
		defer cancel()
		return dep.Health(ctx)
	}, hc.timeout))
}

// LiveEndpoint 存活探针
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪探针
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行全部依赖检查，返回各依赖状态及整体是否健康
func (hc *HealthChecker) CheckHealth(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(hc.order)+1)
	healthy := true

	for _, name := range hc.order {
		checkCtx, cancel := context.WithTimeout(ctx, hc.timeout)
		err := hc.deps[name].Health(checkCtx)
		cancel()

		if err != nil {
			healthy = false
			results[name] = fmt.Sprintf("ERROR: %v", err)
			hc.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			continue
		}
		results[name] = "OK"
	}
	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results, healthy
}
