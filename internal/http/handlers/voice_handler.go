package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/connectai-gateway/internal/http/middleware"
	"github.com/tbourn/connectai-gateway/internal/voice"
)

// RealtimeVoice godoc
// @ID          realtimeVoice
// @Summary     Realtime voice session
// @Description Upgrades to a WebSocket and relays frames to the realtime voice provider. Browsers pass the access token as `access_token`. After the provider's session.created the gateway sends exactly one session.update.
// @Tags        Voice
// @Security    BearerAuth
//
// @Param       voice         query  string  false  "Voice persona (alloy, ash, ballad, coral, echo, sage, shimmer, verse)"  default(alloy)
// @Param       access_token  query  string  false  "Access token when the Authorization header cannot be set"
//
// @Success     101  {string}  string                  "Switching Protocols"
// @Failure     400  {object}  handlers.ErrorResponse  "Expected WebSocket connection"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid credential"
// @Failure     403  {object}  handlers.ErrorResponse  "No active subscription"
// @Router      /realtime-voice [get]
func (h *Handlers) RealtimeVoice(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		abort(c, http.StatusBadRequest, ErrorResponse{Error: MsgExpectedWebSocket})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader already answered with an HTTP error.
		middleware.LoggerFrom(c).Warn().Err(err).Msg("websocket upgrade failed")
		c.Abort()
		return
	}
	voice.NewRelay(h.voice, conn, middleware.UserID(c), c.Query("voice")).Run(c.Request.Context())
}
