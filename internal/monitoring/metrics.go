package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 冲突原因
const (
	ConflictDuplicateContact = "duplicate_contact"
	ConflictReplyEmailTaken  = "reply_email_taken"
)

// Metrics 监控指标
//
// 所有 Record/Update 方法允许在 nil 接收者上调用，便于在测试中省略指标。
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 联系人指标
	ContactsCreated      prometheus.Counter
	ContactConflicts     *prometheus.CounterVec
	ReverseAliasAttempts prometheus.Histogram

	// 别名与活动指标
	AliasMutations *prometheus.CounterVec
	Activities     *prometheus.CounterVec

	// 认证指标
	AuthFailures *prometheus.CounterVec

	// 系统指标
	SystemUptime prometheus.Gauge
	MemoryUsage  prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec

	gatherer  prometheus.Gatherer
	startTime time.Time
}

// NewMetrics 在默认注册表上创建监控指标
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWith 在指定注册表上创建监控指标，测试时每个用例使用独立注册表
func NewMetricsWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aliasmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aliasmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aliasmail_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 4, 6),
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aliasmail_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 4, 6),
			},
			[]string{"method", "endpoint"},
		),

		ContactsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "aliasmail_contacts_created_total",
			Help: "Total number of contacts created",
		}),

		ContactConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aliasmail_contact_conflicts_total",
				Help: "Contact creations rejected by a uniqueness conflict",
			},
			[]string{"reason"},
		),

		ReverseAliasAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aliasmail_reverse_alias_generate_attempts",
			Help:    "Number of candidates tried before a free reverse alias was found",
			Buckets: []float64{1, 2, 3, 5, 10, 100, 1000},
		}),

		AliasMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aliasmail_alias_mutations_total",
				Help: "Alias mutations by operation",
			},
			[]string{"operation"},
		),

		Activities: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aliasmail_activities_listed_total",
				Help: "Activities returned by action",
			},
			[]string{"action"},
		),

		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aliasmail_auth_failures_total",
				Help: "Rejected authentication attempts by method",
			},
			[]string{"method"},
		),

		SystemUptime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aliasmail_system_uptime_seconds",
			Help: "System uptime in seconds",
		}),

		MemoryUsage: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aliasmail_memory_usage_bytes",
			Help: "Heap bytes allocated",
		}),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aliasmail_errors_total",
				Help: "Total number of errors",
			},
			[]string{"error_type", "component"},
		),

		PanicsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aliasmail_panics_total",
			Help: "Total number of recovered panics",
		}),

		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aliasmail_rate_limit_blocks_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"limit_type"},
		),

		gatherer:  gatherer,
		startTime: time.Now(),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize, responseSize int64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordContactCreated 记录联系人创建
func (m *Metrics) RecordContactCreated() {
	if m == nil {
		return
	}
	m.ContactsCreated.Inc()
}

// RecordContactConflict 记录联系人唯一约束冲突
func (m *Metrics) RecordContactConflict(reason string) {
	if m == nil {
		return
	}
	m.ContactConflicts.WithLabelValues(reason).Inc()
}

// ObserveReverseAliasAttempts 记录生成反向别名的尝试次数
func (m *Metrics) ObserveReverseAliasAttempts(attempts int) {
	if m == nil {
		return
	}
	m.ReverseAliasAttempts.Observe(float64(attempts))
}

// RecordAliasMutation 记录别名变更
func (m *Metrics) RecordAliasMutation(operation string) {
	if m == nil {
		return
	}
	m.AliasMutations.WithLabelValues(operation).Inc()
}

// RecordActivity 记录返回的活动
func (m *Metrics) RecordActivity(action string) {
	if m == nil {
		return
	}
	m.Activities.WithLabelValues(action).Inc()
}

// RecordAuthFailure 记录认证失败
func (m *Metrics) RecordAuthFailure(method string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(method).Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	if m == nil {
		return
	}
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// UpdateSystemUptime 按启动时间更新运行时长
func (m *Metrics) UpdateSystemUptime() {
	if m == nil {
		return
	}
	m.SystemUptime.Set(time.Since(m.startTime).Seconds())
}

// UpdateMemoryUsage 更新内存使用
func (m *Metrics) UpdateMemoryUsage(bytes uint64) {
	if m == nil {
		return
	}
	m.MemoryUsage.Set(float64(bytes))
}

// HTTPHandler 返回 Prometheus 指标处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
