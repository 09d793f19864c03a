package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// once 保证指标只注册一次。
	// Prometheus 的 registry 不允许重复注册同名指标，否则会直接 panic。
	once sync.Once

	// HTTPRequestsTotal：累计请求数（Counter）。
	//
	// labels：
	// - method：HTTP 方法
	// - route：路由模板（用 pattern 而不是真实 path，避免无限 label）
	// - status：HTTP 状态码字符串
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds：请求耗时分布（Histogram），用于算 P95/P99。
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// HTTPInflightRequests：当前正在处理中的请求数（Gauge）。
	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// LinkRedirects：成功跳转次数。
	LinkRedirects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "link_redirects_total",
			Help: "Total number of successful link redirects.",
		},
	)

	// LinkOperations：核心操作的结果分布。
	//
	// labels：
	// - op：create / edit / toggle / delete
	// - outcome：ok / error
	LinkOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "link_operations_total",
			Help: "Link core operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	// SweptLinks：清扫关掉的过期链接条数。
	SweptLinks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "link_swept_total",
			Help: "Total number of expired links auto-disabled by the sweep.",
		},
	)
)

// Init 注册指标：只允许注册一次（否则 panic: duplicate metrics collector registration）
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			LinkRedirects,
			LinkOperations,
			SweptLinks,
		)
	})
}
