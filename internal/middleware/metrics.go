package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests (Rate)",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "Total number of HTTP request errors",
		},
		[]string{"method", "path", "status", "error_type"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request duration in seconds (Duration)",
			// Ledger writes wait for a receipt, so the tail runs to tens of seconds.
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)
)

func Metrics(reg prometheus.Registerer) gin.HandlerFunc {
	reg.MustRegister(httpRequestsTotal, httpRequestErrorsTotal, httpRequestDuration, httpRequestsInFlight)

	return func(c *gin.Context) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		c.Next()

		status := c.Writer.Status()
		statusStr := strconv.Itoa(status)
		// Route templates keep /rideHistory/:address from exploding the label set.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()

		if status >= 400 && status < 500 {
			httpRequestErrorsTotal.WithLabelValues(method, path, statusStr, "client").Inc()
		} else if status >= 500 {
			httpRequestErrorsTotal.WithLabelValues(method, path, statusStr, "server").Inc()
		}

		httpRequestDuration.WithLabelValues(method, path, statusStr).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler serves reg in the Prometheus text format. With a username set it is behind
// basic auth.
func MetricsHandler(reg *prometheus.Registry, username, password string) []gin.HandlerFunc {
	serve := gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if username == "" {
		return []gin.HandlerFunc{serve}
	}
	return []gin.HandlerFunc{gin.BasicAuth(gin.Accounts{username: password}), serve}
}
