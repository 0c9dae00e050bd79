package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func meteredEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.POST("/chat", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.String(http.StatusOK, "data: [DONE]\n\n")
	})
	r.GET("/realtime-voice", func(c *gin.Context) {
		if c.Query("reject") != "" {
			c.AbortWithStatus(http.StatusBadRequest)
		}
	})
	return r
}

func TestMetrics_RequestCounts(t *testing.T) {
	r := meteredEngine()

	cases := []struct {
		method, target, path, status string
		upgrade                      bool
	}{
		{http.MethodGet, "/health", "/health", "200", false},
		{http.MethodGet, "/wp-login.php?x=1", unmatchedPath, "404", false},
		{http.MethodPost, "/chat", "/chat", "200", false},
		{http.MethodGet, "/realtime-voice", "/realtime-voice", "101", true},
		{http.MethodGet, "/realtime-voice?reject=1", "/realtime-voice", "400", true},
	}
	for _, tc := range cases {
		t.Run(tc.target, func(t *testing.T) {
			ctr := httpReqs.WithLabelValues(tc.method, tc.path, tc.status)
			before := testutil.ToFloat64(ctr)

			req := httptest.NewRequest(tc.method, tc.target, nil)
			if tc.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			r.ServeHTTP(httptest.NewRecorder(), req)

			if got := testutil.ToFloat64(ctr); got != before+1 {
				t.Fatalf("http_requests_total%v = %v; want %v", []string{tc.method, tc.path, tc.status}, got, before+1)
			}
		})
	}
	if v := testutil.ToFloat64(httpInflight); v != 0 {
		t.Fatalf("inflight=%v after all requests finished", v)
	}
}

func TestMetrics_StreamsSkipLatencyHistogram(t *testing.T) {
	r := meteredEngine()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/chat", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if testutil.CollectAndCount(httpStreamDur) == 0 {
		t.Fatal("no stream series for /chat")
	}
	// Only /health may appear in the latency and size histograms.
	for _, h := range []interface{ DeleteLabelValues(...string) bool }{httpLat, httpRespSize} {
		if h.DeleteLabelValues(http.MethodPost, "/chat") {
			t.Fatal("event stream observed as a plain request")
		}
		if !h.DeleteLabelValues(http.MethodGet, "/health") {
			t.Fatal("plain request not observed")
		}
	}
}

func TestRouteAndStatusLabels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/anything", nil)

	if got := routeLabel(c); got != unmatchedPath {
		t.Fatalf("routeLabel=%q", got)
	}
	if got := statusLabel(c, false); got != "200" {
		t.Fatalf("statusLabel=%q", got)
	}
	if got := statusLabel(c, true); got != "101" {
		t.Fatalf("upgrade statusLabel=%q", got)
	}
	c.AbortWithStatus(http.StatusUnauthorized)
	if got := statusLabel(c, true); got != "401" {
		t.Fatalf("refused upgrade statusLabel=%q", got)
	}
}
