package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/connectai-gateway/internal/domain"
	"github.com/tbourn/connectai-gateway/internal/http/middleware"
)

// relayBufferSize bounds each read from the upstream stream.
const relayBufferSize = 4 << 10

// ChatRequest is the JSON payload for a chat turn. The whole conversation is
// sent on every request; the gateway keeps no history.
type ChatRequest struct {
	Messages []domain.ChatMessage `json:"messages"`
}

// Chat godoc
// @ID          chat
// @Summary     Stream an assistant reply
// @Description Routes the conversation to a model allowed by the caller's plan and relays the upstream token stream unchanged. Each event is a `data: <json>` line; the stream ends with `data: [DONE]`.
// @Tags        Chat
// @Accept      json
// @Produce     text/event-stream
// @Security    BearerAuth
//
// @Param       body  body  handlers.ChatRequest  true  "Conversation"
//
// @Success     200  {string}  string                 "Server-sent event stream"
// @Failure     400  {object}  handlers.ErrorResponse "Invalid conversation"
// @Failure     401  {object}  handlers.ErrorResponse "Missing or invalid credential"
// @Failure     402  {object}  handlers.ErrorResponse "INSUFFICIENT_CREDITS"
// @Failure     403  {object}  handlers.ErrorResponse "No entitlement, or UPGRADE_REQUIRED"
// @Failure     429  {object}  handlers.ErrorResponse "RATE_LIMIT_EXCEEDED or AI_RATE_LIMIT_EXCEEDED"
// @Failure     500  {object}  handlers.ErrorResponse "Upstream failure"
// @Router      /chat [post]
func (h *Handlers) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "", MsgInvalidBody)
		return
	}

	stream, err := h.chat.Open(c.Request.Context(), middleware.UserID(c), middleware.SubscriptionFrom(c), req.Messages)
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.LoggerFrom(c).Info().
		Str("model", stream.Model).
		Str("task_type", string(stream.TaskType)).
		Bool("fallback", stream.Fallback).
		Msg("chat stream opened")

	hdr := c.Writer.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	stream.Close(relay(c.Writer, stream.Body))
}

// relay copies upstream bytes to w as they arrive, flushing after every
// write. It reads only as fast as the client drains and returns nil on a
// clean end of stream. A client disconnect cancels the request context,
// which aborts the upstream read.
func relay(w gin.ResponseWriter, r io.Reader) error {
	buf := make([]byte, relayBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			w.Flush()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
