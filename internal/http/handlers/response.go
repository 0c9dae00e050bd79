// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all
// endpoints. Every failure carries an ErrorResponse with a human-readable
// `error`; `code` is present only when clients need to branch on it.
//
// Example error response:
//
//	HTTP/1.1 402 Payment Required
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "error": "Créditos insuficientes. Por favor, recarregue seus créditos.",
//	  "code": "INSUFFICIENT_CREDITS"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/connectai-gateway/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Human-readable message (safe to show to users)
	Error string `json:"error" example:"Não autorizado"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code,omitempty" example:"RATE_LIMIT_EXCEEDED"`
	// Optional truncated detail, never a raw upstream body
	Details string `json:"details,omitempty" example:"objective: campo obrigatório"`
	// Seconds until the quota window resets, on 429 quota rejections
	RetryAfter int `json:"retryAfter,omitempty" example:"3540"`
}

// abort stamps the request id onto resp and stops the chain.
func abort(c *gin.Context, status int, resp ErrorResponse) {
	resp.RequestID = middleware.RequestIDFrom(c)
	if resp.RequestID == "" {
		resp.RequestID = c.Writer.Header().Get("X-Request-ID")
	}
	c.AbortWithStatusJSON(status, resp)
}

// fail aborts with a plain envelope; 5xx results are also logged with the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().Int("status", status).Str("code", code).Str("message", msg).Msg("api error")
	}
	abort(c, status, ErrorResponse{Code: code, Error: msg})
}

// Fail renders the standard error envelope for callers outside this package,
// such as the router's NoRoute handler.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
