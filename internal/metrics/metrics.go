// Package metrics exposes HTTP and engine collectors for Prometheus.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ─── HTTP ───────────────────────────────────────────────────────────

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)
)

// ─── Engine ─────────────────────────────────────────────────────────

var (
	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_answers_total",
			Help: "Accepted answers by mode and correctness",
		},
		[]string{"mode", "correct"},
	)

	DuplicateAnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_duplicate_answers_total",
			Help: "Rejected duplicate answer submissions",
		},
		[]string{"mode"},
	)

	RoutingMissingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_routing_missing_total",
			Help: "Transitions that held difficulty because routing had no entry",
		},
		[]string{"mode"},
	)

	PoolBroadenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_pool_broadened_total",
			Help: "Selections that fell back to any unseen question",
		},
		[]string{"mode"},
	)

	PoolExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_pool_exhausted_total",
			Help: "Selections that found no unseen question at all",
		},
		[]string{"mode"},
	)

	AdvancesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_synchronized_advances_total",
			Help: "Cohort advances by decision",
		},
		[]string{"decision"},
	)

	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_attempts_total",
			Help: "Submitted attempts by final status",
		},
		[]string{"status"},
	)
)

// Mode labels.
const (
	ModeIndividual   = "individual"
	ModeSynchronized = "synchronized"
)

var initOnce sync.Once

// Init registers every collector with the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			AnswersTotal,
			DuplicateAnswersTotal,
			RoutingMissingTotal,
			PoolBroadenedTotal,
			PoolExhaustedTotal,
			AdvancesTotal,
			AttemptsTotal,
		)
	})
}

// ObserveAnswer counts one accepted answer.
func ObserveAnswer(mode string, correct bool) {
	AnswersTotal.WithLabelValues(mode, strconv.FormatBool(correct)).Inc()
}

// MetricsMiddleware records count and latency per route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

// PrometheusHandler serves the default registry.
func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
