package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 服务自己的指标注册表，不使用全局默认注册表
var Registry = prometheus.NewRegistry()

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oxigame",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "oxigame",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	Claims = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oxigame",
		Subsystem: "economy",
		Name:      "claims_total",
		Help:      "Total number of successful claims.",
	})

	SettledUnits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oxigame",
		Subsystem: "economy",
		Name:      "settled_units_total",
		Help:      "Currency units moved from pending accrual into balances.",
	})

	Registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oxigame",
			Subsystem: "economy",
			Name:      "registrations_total",
			Help:      "Total number of registered accounts.",
		},
		[]string{"referred"},
	)

	ReferralBonuses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "oxigame",
		Subsystem: "economy",
		Name:      "referral_bonus_total",
		Help:      "Total number of referral bonuses granted.",
	})

	Upgrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oxigame",
			Subsystem: "economy",
			Name:      "upgrades_total",
			Help:      "Total number of purchased upgrades.",
		},
		[]string{"kind"},
	)

	RateLimitBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oxigame",
			Subsystem: "http",
			Name:      "rate_limit_blocked_total",
			Help:      "Total requests blocked by the rate limiter.",
		},
		[]string{"path"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		Claims,
		SettledUnits,
		Registrations,
		ReferralBonuses,
		Upgrades,
		RateLimitBlocked,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler 暴露 /metrics
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware 按路由模板统计请求数和耗时，未匹配的路由统一记为 unmatched
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if path == "/metrics" {
			return
		}
		method := c.Request.Method

		httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordRegistration 记录一次注册
func RecordRegistration(referred bool) {
	Registrations.WithLabelValues(strconv.FormatBool(referred)).Inc()
	if referred {
		ReferralBonuses.Inc()
	}
}

// RecordClaim 记录一次领取及入账数量
func RecordClaim(settled uint64) {
	Claims.Inc()
	SettledUnits.Add(float64(settled))
}
