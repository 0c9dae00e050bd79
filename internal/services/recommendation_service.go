package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/connectai-gateway/internal/domain"
	"github.com/tbourn/connectai-gateway/internal/observability"
	"github.com/tbourn/connectai-gateway/internal/ratelimit"
	"github.com/tbourn/connectai-gateway/internal/upstream"
)

// CompletionUpstream defines the gateway contract required by
// RecommendationService.
type CompletionUpstream interface {
	Configured() bool
	Complete(ctx context.Context, req upstream.ChatRequest) (string, error)
}

// RecommendationService turns questionnaire answers into SMART goals.
type RecommendationService struct {
	Upstream CompletionUpstream
	Limiter  ratelimit.Limiter
	Quotas   ratelimit.Quotas

	Model       string
	Temperature float64
	// Timeout bounds the completion including retries.
	Timeout time.Duration
	// MaxResults caps the returned list.
	MaxResults int
}

// NewRecommendationService constructs a RecommendationService returning at
// most five goals.
func NewRecommendationService(up CompletionUpstream, limiter ratelimit.Limiter, quotas ratelimit.Quotas, model string, temperature float64, timeout time.Duration) *RecommendationService {
	return &RecommendationService{
		Upstream:    up,
		Limiter:     limiter,
		Quotas:      quotas,
		Model:       model,
		Temperature: temperature,
		Timeout:     timeout,
		MaxResults:  5,
	}
}

// Generate charges the recommendation quota and asks the gateway for goals.
// Answers are expected to be validated by the caller.
func (s *RecommendationService) Generate(ctx context.Context, userID string, answers domain.QuestionnaireAnswers) ([]domain.GoalRecommendation, error) {
	tr := otel.Tracer("services/RecommendationService")
	ctx, span := tr.Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("ai.model", s.Model),
		),
	)
	defer span.End()

	if !s.Upstream.Configured() {
		return nil, ErrMissingGatewayKey
	}

	d, _ := s.Limiter.Allow(ctx, userID, s.Quotas.RecommendationQuota())
	if !d.Allowed {
		return nil, &RateLimitError{Purpose: domain.PurposeRecommendation, RetryAfter: d.RetryAfter}
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	temp := s.Temperature
	content, err := s.Upstream.Complete(ctx, upstream.ChatRequest{
		Model: s.Model,
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: recommendationPrompt},
			{Role: domain.RoleUser, Content: recommendationUserPrompt(answers)},
		},
		Temperature: &temp,
	})
	if err != nil {
		observability.UpstreamAttempts.WithLabelValues(s.Model, "completion", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		if errors.Is(err, upstream.ErrEmptyCompletion) {
			return nil, fmt.Errorf("%w: %w", ErrUpstreamFormat, err)
		}
		return nil, classifyUpstream(err)
	}
	observability.UpstreamAttempts.WithLabelValues(s.Model, "completion", "ok").Inc()

	recs, dropped, err := ParseRecommendations(content)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Int("content_len", len(content)).Msg("unusable recommendation payload")
		span.SetStatus(codes.Error, "invalid payload")
		return nil, err
	}
	if dropped > 0 {
		log.Warn().Str("user_id", userID).Int("dropped", dropped).Msg("dropped invalid recommendations")
	}
	if s.MaxResults > 0 && len(recs) > s.MaxResults {
		recs = recs[:s.MaxResults]
	}
	span.SetAttributes(attribute.Int("recommendations", len(recs)))
	return recs, nil
}

// openFenceRE matches an opening ``` fence with an optional language tag.
var openFenceRE = regexp.MustCompile("^```[a-zA-Z]*")

// stripFences removes a leading ```lang and a trailing ``` wherever the line
// breaks fall, so "```json[...]```" and "```json\n[...]```" both decode.
func stripFences(content string) string {
	s := strings.TrimSpace(content)
	s = openFenceRE.ReplaceAllString(s, "")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseRecommendations strips code fences, decodes a JSON array and keeps
// the entries that validate. It returns ErrUpstreamFormat when the payload is
// not an array of objects or when no entry survives.
func ParseRecommendations(content string) ([]domain.GoalRecommendation, int, error) {
	cleaned := stripFences(content)

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUpstreamFormat, err)
	}

	out := make([]domain.GoalRecommendation, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		var g domain.GoalRecommendation
		if err := json.Unmarshal(r, &g); err != nil || g.Validate() != nil {
			dropped++
			continue
		}
		out = append(out, g)
	}
	if len(out) == 0 {
		return nil, dropped, fmt.Errorf("%w: no valid recommendations", ErrUpstreamFormat)
	}
	return out, dropped, nil
}
