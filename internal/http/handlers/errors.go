// Package handlers maps gateway errors to HTTP results.
//
// This file centralizes the machine-readable codes clients branch on and the
// translation from package sentinel errors to status, code and the
// Portuguese message shown to users. Codes are only set where the client UX
// needs to tell cases apart; plain 400/401/403/500 results carry none.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "error": "Limite de requisições atingido. Tente novamente em breve.",
//	  "code": "RATE_LIMIT_EXCEEDED"
//	}
package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/connectai-gateway/internal/auth"
	"github.com/tbourn/connectai-gateway/internal/domain"
	"github.com/tbourn/connectai-gateway/internal/http/middleware"
	"github.com/tbourn/connectai-gateway/internal/modelrouter"
	"github.com/tbourn/connectai-gateway/internal/services"
	"github.com/tbourn/connectai-gateway/internal/upstream"
)

const (
	ErrCodeUpgradeRequired   = "UPGRADE_REQUIRED"
	ErrCodeRateLimited       = "RATE_LIMIT_EXCEEDED"
	ErrCodeAIRateLimited     = "AI_RATE_LIMIT_EXCEEDED"
	ErrCodeNoCredits         = "INSUFFICIENT_CREDITS"
	ErrCodeInvalidAIResponse = "INVALID_AI_RESPONSE"
)

// User-facing messages. Access and panic messages live in middleware.
const (
	MsgInvalidBody         = "Corpo da requisição inválido"
	MsgMissingMessages     = "Mensagens ausentes"
	MsgInvalidMessages     = "Mensagens inválidas"
	MsgInvalidAnswers      = "Dados do questionário inválidos"
	MsgChatRateLimited     = "Limite de requisições atingido. Tente novamente em breve."
	MsgGoalsRateLimited    = "Limite de gerações de metas atingido. Tente novamente em uma hora."
	MsgNoCredits           = "Créditos insuficientes. Por favor, recarregue seus créditos."
	MsgUpstreamFailed      = "Erro ao processar requisição"
	MsgInvalidAIResponse   = "Resposta inválida do serviço de IA. Tente novamente."
	MsgServerMisconfigured = "Erro de configuração do servidor"
	MsgNotFound            = "Recurso não encontrado"
	MsgMethodNotAllowed    = "Método não permitido"
	MsgExpectedWebSocket   = "Expected WebSocket connection"
)

// apiError is the HTTP rendering of an error.
type apiError struct {
	status  int
	code    string
	msg     string
	details string
}

// mapError translates err into its HTTP rendering. Unknown errors become a
// bare 500.
func mapError(err error) apiError {
	var (
		rl *services.RateLimitError
		ue *services.UpstreamError
	)
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return apiError{status: http.StatusUnauthorized, msg: middleware.MsgUnauthorized}
	case errors.Is(err, auth.ErrPlanRequired), errors.Is(err, modelrouter.ErrUpgradeRequired):
		return apiError{status: http.StatusForbidden, code: ErrCodeUpgradeRequired, msg: middleware.MsgUpgradeRequired}
	case errors.Is(err, auth.ErrForbidden):
		return apiError{status: http.StatusForbidden, msg: middleware.MsgForbidden}
	case errors.Is(err, domain.ErrNoMessages):
		return apiError{status: http.StatusBadRequest, msg: MsgMissingMessages}
	case errors.Is(err, services.ErrInvalidConversation):
		return apiError{status: http.StatusBadRequest, msg: MsgInvalidMessages, details: cause(err, services.ErrInvalidConversation)}
	case errors.As(err, &rl):
		msg := MsgChatRateLimited
		if rl.Purpose == domain.PurposeRecommendation {
			msg = MsgGoalsRateLimited
		}
		return apiError{status: http.StatusTooManyRequests, code: ErrCodeRateLimited, msg: msg}
	case errors.Is(err, upstream.ErrRateLimited):
		return apiError{status: http.StatusTooManyRequests, code: ErrCodeAIRateLimited, msg: MsgChatRateLimited}
	case errors.Is(err, upstream.ErrPaymentRequired):
		return apiError{status: http.StatusPaymentRequired, code: ErrCodeNoCredits, msg: MsgNoCredits}
	case errors.Is(err, services.ErrUpstreamFormat):
		return apiError{status: http.StatusInternalServerError, code: ErrCodeInvalidAIResponse, msg: MsgInvalidAIResponse}
	case errors.As(err, &ue):
		return apiError{status: http.StatusInternalServerError, msg: MsgUpstreamFailed, details: ue.Details}
	case errors.Is(err, services.ErrMissingGatewayKey):
		return apiError{status: http.StatusInternalServerError, msg: MsgServerMisconfigured}
	}
	return apiError{status: http.StatusInternalServerError, msg: middleware.MsgInternal}
}

// failErr aborts with the mapping of err. Quota rejections also carry a
// Retry-After header in whole seconds, mirrored as retryAfter in the body.
func failErr(c *gin.Context, err error) {
	e := mapError(err)
	resp := ErrorResponse{Error: e.msg, Code: e.code, Details: e.details}

	var rl *services.RateLimitError
	if errors.As(err, &rl) {
		resp.RetryAfter = retrySeconds(rl.RetryAfter)
		c.Header("Retry-After", strconv.Itoa(resp.RetryAfter))
	}
	if e.status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().Err(err).Int("status", e.status).Str("code", e.code).Msg("api error")
	}
	abort(c, e.status, resp)
}

func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// cause returns the first error joined with sentinel, for use as details.
func cause(err, sentinel error) string {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			if e != sentinel {
				return e.Error()
			}
		}
	}
	return ""
}
