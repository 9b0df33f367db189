package http

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors.
//
//   - feedsync_http_requests_total{method,route,status}
//   - feedsync_http_request_duration_seconds{method,route}
//   - feedsync_posts_created_total{outcome}   approved or held
//   - feedsync_likes_toggled_total{action}    like or unlike
//   - feedsync_events_published_total{type}
type Metrics struct {
	Registry        *prometheus.Registry
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	PostsCreated    *prometheus.CounterVec
	LikesToggled    *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_http_requests_total",
			Help: "HTTP requests served, by route and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feedsync_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		PostsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_posts_created_total",
			Help: "Posts created, by moderation outcome.",
		}, []string{"outcome"}),
		LikesToggled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_likes_toggled_total",
			Help: "Like toggles, by resulting action.",
		}, []string{"action"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_events_published_total",
			Help: "Websocket events published, by type.",
		}, []string{"type"}),
	}
}

// Middleware records request counts and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}
