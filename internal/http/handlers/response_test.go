package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/connectai-gateway/internal/domain"
	"github.com/tbourn/connectai-gateway/internal/http/middleware"
)

func TestFail_Envelope(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RedactingLogger(middleware.RedactOptions{}))
	r.GET("/health", func(c *gin.Context) {
		Fail(c, http.StatusServiceUnavailable, "", MsgServerMisconfigured)
	})
	r.NoRoute(func(c *gin.Context) { Fail(c, http.StatusNotFound, "", MsgNotFound) })
	r.POST("/chat", func(c *gin.Context) {
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, MsgChatRateLimited)
	})

	cases := []struct {
		method, path string
		status       int
		want         ErrorResponse
		logged       bool
	}{
		{http.MethodGet, "/health", http.StatusServiceUnavailable, ErrorResponse{Error: MsgServerMisconfigured}, true},
		{http.MethodGet, "/missing", http.StatusNotFound, ErrorResponse{Error: MsgNotFound}, false},
		{http.MethodPost, "/chat", http.StatusTooManyRequests, ErrorResponse{Error: MsgChatRateLimited, Code: ErrCodeRateLimited}, false},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			buf.Reset()
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("X-Request-ID", "rid-"+strings.Trim(tc.path, "/"))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Fatalf("status=%d", w.Code)
			}
			var got ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("body: %v", err)
			}
			tc.want.RequestID = "rid-" + strings.Trim(tc.path, "/")
			if got != tc.want {
				t.Fatalf("got %+v; want %+v", got, tc.want)
			}
			if tc.want.Code == "" && strings.Contains(w.Body.String(), `"code"`) {
				t.Fatalf("empty code must be omitted: %s", w.Body.String())
			}
			if logged := strings.Contains(buf.String(), `"api error"`); logged != tc.logged {
				t.Fatalf("api error logged=%v; want %v\n%s", logged, tc.logged, buf.String())
			}
		})
	}
}

func TestAbort_FallsBackToResponseHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/chat", nil)
	c.Header("X-Request-ID", "rid-header")

	abort(c, http.StatusBadRequest, ErrorResponse{Error: MsgInvalidBody})

	if !c.IsAborted() || w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"request_id":"rid-header"`) {
		t.Fatalf("aborted=%v status=%d body=%s", c.IsAborted(), w.Code, w.Body.String())
	}
}

func TestOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ok(c, http.StatusOK, RecommendationResponse{Recommendations: []domain.GoalRecommendation{}})

	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"recommendations":[]}` {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}
