// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the HTTP-level Prometheus collectors. Labels stay bounded:
// path is the registered route or "unmatched", never the raw URL.
//
// Chat answers are event streams and voice sessions are upgraded sockets, so
// their wall time measures a conversation rather than the server. Those land
// in http_stream_duration_seconds; http_request_duration_seconds only sees
// plain request/response exchanges and is safe to build latency SLOs on.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedPath = "unmatched"

var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "path", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of non-streaming HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpStreamDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_stream_duration_seconds",
		Help:    "How long event streams and upgraded sockets stayed open, in seconds.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"path"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_inflight",
		Help: "HTTP requests currently being served, open streams included.",
	})

	// 256B .. 4MiB
	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "Size of HTTP response bodies in bytes.",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"method", "path"})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpStreamDur, httpInflight, httpRespSize)
}

// Metrics instruments every request. Mount promhttp.Handler next to it to
// expose the collectors.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInflight.Inc()
		start := time.Now()
		defer httpInflight.Dec()

		c.Next()

		elapsed := time.Since(start).Seconds()
		path := routeLabel(c)
		method := c.Request.Method
		upgrade := isUpgrade(c.Request)

		httpReqs.WithLabelValues(method, path, statusLabel(c, upgrade)).Inc()
		if upgrade || isEventStream(c) {
			httpStreamDur.WithLabelValues(path).Observe(elapsed)
			return
		}
		httpLat.WithLabelValues(method, path).Observe(elapsed)
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}

func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedPath
}

// statusLabel reports 101 for a socket the handler upgraded, since gin's
// writer never sees the status the upgrader writes to the hijacked conn.
func statusLabel(c *gin.Context, upgrade bool) string {
	status := c.Writer.Status()
	if upgrade && status == http.StatusOK && !c.IsAborted() {
		status = http.StatusSwitchingProtocols
	}
	return strconv.Itoa(status)
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func isEventStream(c *gin.Context) bool {
	return strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream")
}
