package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 路线图生成任务
	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadmap_jobs_processed_total",
			Help: "Roadmap generation jobs by outcome",
		},
		[]string{"outcome"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roadmap_job_duration_seconds",
			Help:    "Duration of roadmap generation jobs",
			Buckets: []float64{1, 5, 10, 20, 40, 60, 120},
		},
		[]string{"outcome"},
	)

	JobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "roadmap_jobs_in_flight",
			Help: "Roadmap generation jobs currently running",
		},
	)

	JobsRecovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roadmap_jobs_recovered_total",
			Help: "Stalled jobs moved back to the wait list",
		},
	)

	ExternalLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resource_external_lookups_total",
			Help: "External video-platform lookups by result",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// Init api 与 worker 在同一进程时只注册一次
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			JobsProcessed,
			JobDuration,
			JobsInFlight,
			JobsRecovered,
			ExternalLookups,
		)
	})
}

func ObserveJob(outcome string, started time.Time) {
	JobsProcessed.WithLabelValues(outcome).Inc()
	JobDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
}

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

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
