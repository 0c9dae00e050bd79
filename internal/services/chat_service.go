// Package services – ChatService
//
// ChatService opens a relayed chat stream for one request. The order is
// fixed: validate, route, charge the chat quota, then call the upstream
// gateway with one fallback attempt. Malformed and plan-gated requests
// therefore never consume quota.
//
// The returned ChatStream owns the upstream body; the handler copies it to
// the client and calls Close, which records usage off the response path.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/connectai-gateway/internal/domain"
	"github.com/tbourn/connectai-gateway/internal/modelrouter"
	"github.com/tbourn/connectai-gateway/internal/observability"
	"github.com/tbourn/connectai-gateway/internal/ratelimit"
	"github.com/tbourn/connectai-gateway/internal/upstream"
)

// ChatUpstream defines the gateway contract required by ChatService.
type ChatUpstream interface {
	Configured() bool
	StreamChat(ctx context.Context, model string, msgs []domain.ChatMessage) (*http.Response, error)
}

// UsageRecorder accepts usage entries without blocking the caller.
type UsageRecorder interface {
	Record(ctx context.Context, entry domain.UsageLog)
}

// ChatService relays chat conversations to the upstream gateway.
type ChatService struct {
	Upstream ChatUpstream
	Limiter  ratelimit.Limiter
	Quotas   ratelimit.Quotas
	Usage    UsageRecorder

	// Timeout bounds the whole upstream exchange, stream included.
	Timeout time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// NewChatService constructs a ChatService.
func NewChatService(up ChatUpstream, limiter ratelimit.Limiter, quotas ratelimit.Quotas, usage UsageRecorder, timeout time.Duration) *ChatService {
	return &ChatService{
		Upstream: up,
		Limiter:  limiter,
		Quotas:   quotas,
		Usage:    usage,
		Timeout:  timeout,
		Now:      time.Now,
	}
}

// ChatStream is an open upstream event stream.
type ChatStream struct {
	Body     io.ReadCloser
	Model    string
	TaskType domain.TaskType
	Fallback bool

	userID  string
	latency time.Duration
	cancel  context.CancelFunc
	usage   UsageRecorder
	once    sync.Once
}

// Close releases the upstream body and records a successful usage entry for
// the model that served the stream. copyErr is the relay error, if any; it is
// logged but does not turn the entry into a failure. Safe to call twice.
func (s *ChatStream) Close(copyErr error) {
	s.once.Do(func() {
		_ = s.Body.Close()
		s.cancel()
		if copyErr != nil && !errors.Is(copyErr, context.Canceled) {
			log.Warn().Err(copyErr).Str("user_id", s.userID).Str("model", s.Model).Msg("chat stream interrupted")
		}
		s.usage.Record(context.Background(), domain.UsageLog{
			UserID:         s.userID,
			ModelUsed:      s.Model,
			ResponseTimeMS: s.latency.Milliseconds(),
			TaskType:       s.TaskType,
			Success:        true,
		})
	})
}

// Open validates the conversation, routes it, charges the chat quota and
// returns the first 2xx upstream stream (primary or fallback).
func (s *ChatService) Open(ctx context.Context, userID string, sub *domain.Subscription, msgs []domain.ChatMessage) (*ChatStream, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Open",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("plan", string(sub.PlanType)),
			attribute.Int("messages", len(msgs)),
		),
	)
	defer span.End()
	start := s.Now()

	if err := domain.ValidateConversation(msgs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConversation, err)
	}

	route, err := modelrouter.Select(modelrouter.LastUserMessage(msgs), sub.PlanType)
	span.SetAttributes(attribute.String("task_type", string(route.TaskType)))
	if err != nil {
		return nil, err
	}

	if !s.Upstream.Configured() {
		return nil, ErrMissingGatewayKey
	}

	// Limiter errors come with an allowing decision.
	d, _ := s.Limiter.Allow(ctx, userID, s.Quotas.ChatQuota(sub.PlanType))
	if !d.Allowed {
		return nil, &RateLimitError{Purpose: domain.PurposeChat, RetryAfter: d.RetryAfter}
	}

	payload := make([]domain.ChatMessage, 0, len(msgs)+1)
	payload = append(payload, domain.ChatMessage{Role: domain.RoleSystem, Content: SystemPrompt(sub.PlanType, route.Model)})
	payload = append(payload, msgs...)

	var streamCtx context.Context
	var cancel context.CancelFunc
	if s.Timeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, s.Timeout)
	} else {
		streamCtx, cancel = context.WithCancel(ctx)
	}

	model := route.Model
	resp, err := s.call(streamCtx, model, "primary", payload)
	fellBack := false
	if err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("user_id", userID).Str("model", model).Msg("primary model failed; trying fallback")
		model = modelrouter.Fallback(route.Model)
		fellBack = true
		resp, err = s.call(streamCtx, model, "fallback", payload)
	}
	elapsed := s.Now().Sub(start)
	span.SetAttributes(attribute.String("ai.model", model), attribute.Bool("ai.fallback", fellBack))

	if err != nil {
		cancel()
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream failed")
		msg := err.Error()
		s.Usage.Record(context.Background(), domain.UsageLog{
			UserID:         userID,
			ModelUsed:      model,
			ResponseTimeMS: elapsed.Milliseconds(),
			TaskType:       route.TaskType,
			Success:        false,
			ErrorMessage:   &msg,
		})
		return nil, classifyUpstream(err)
	}

	return &ChatStream{
		Body:     resp.Body,
		Model:    model,
		TaskType: route.TaskType,
		Fallback: fellBack,
		userID:   userID,
		latency:  elapsed,
		cancel:   cancel,
		usage:    s.Usage,
	}, nil
}

func (s *ChatService) call(ctx context.Context, model, attempt string, payload []domain.ChatMessage) (*http.Response, error) {
	t0 := s.Now()
	resp, err := s.Upstream.StreamChat(ctx, model, payload)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else {
		observability.UpstreamLatency.WithLabelValues(model).Observe(s.Now().Sub(t0).Seconds())
	}
	observability.UpstreamAttempts.WithLabelValues(model, attempt, outcome).Inc()
	return resp, err
}

// classifyUpstream maps the last upstream failure. Provider 429/402 keep
// their identity; everything else becomes an UpstreamError.
func classifyUpstream(err error) error {
	switch {
	case errors.Is(err, upstream.ErrNotConfigured):
		return ErrMissingGatewayKey
	case errors.Is(err, upstream.ErrRateLimited), errors.Is(err, upstream.ErrPaymentRequired):
		return err
	}
	var se *upstream.StatusError
	details := ""
	if errors.As(err, &se) {
		details = se.Message
	}
	return &UpstreamError{Details: details, Err: err}
}
