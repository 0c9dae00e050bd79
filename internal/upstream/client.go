// Package upstream is the client for the OpenAI-compatible chat-completion
// gateway. StreamChat hands back the raw event stream for pass-through;
// Complete performs a one-shot, retried completion.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/connectai-gateway/internal/domain"
)

var (
	// ErrNotConfigured means no gateway API key was provided.
	ErrNotConfigured = errors.New("upstream gateway key not configured")
	// ErrRateLimited is the provider-side 429.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrPaymentRequired is the provider-side 402 (credits exhausted).
	ErrPaymentRequired = errors.New("upstream payment required")
	// ErrEmptyCompletion means a 2xx completion carried no choices.
	ErrEmptyCompletion = errors.New("upstream returned no choices")
)

// maxErrorBody caps how much of a non-2xx body is read for summarising.
const maxErrorBody = 4 << 10

// StatusError is a non-2xx answer from the gateway. Message is a short
// summary of the body, never the raw payload.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream status %d", e.Status)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
}

// Unwrap maps provider quota and billing statuses to sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusPaymentRequired:
		return ErrPaymentRequired
	}
	return nil
}

// ChatRequest is the gateway request body.
type ChatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Stream      bool                 `json:"stream,omitempty"`
	Temperature *float64             `json:"temperature,omitempty"`
}

// Client talks to the gateway.
type Client struct {
	url    string
	apiKey string
	hc     *http.Client

	// MaxRetryElapsed bounds Complete's retries.
	MaxRetryElapsed time.Duration
	// InitialRetryInterval is the first backoff delay.
	InitialRetryInterval time.Duration
}

// New constructs a Client. hc may be nil. The client sets no overall timeout
// of its own; callers bound calls (including streamed bodies) via ctx.
func New(url, apiKey string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Transport: http.DefaultTransport}
	}
	return &Client{
		url:                  url,
		apiKey:               apiKey,
		hc:                   hc,
		MaxRetryElapsed:      20 * time.Second,
		InitialRetryInterval: 500 * time.Millisecond,
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

// StreamChat posts a streaming completion for model. On 2xx the response is
// returned with its body unread; the caller must close it. Non-2xx answers
// become *StatusError. Cancelling ctx aborts the body.
func (c *Client) StreamChat(ctx context.Context, model string, msgs []domain.ChatMessage) (*http.Response, error) {
	tr := otel.Tracer("upstream/Client")
	ctx, span := tr.Start(ctx, "StreamChat", trace.WithAttributes(attribute.String("ai.model", model)))
	defer span.End()

	resp, err := c.do(ctx, ChatRequest{Model: model, Messages: msgs, Stream: true}, "text/event-stream")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

// Complete performs a non-streamed completion and returns the first choice's
// content. Network errors and 5xx are retried with exponential backoff; 4xx
// (including 402 and 429) are returned immediately.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	tr := otel.Tracer("upstream/Client")
	ctx, span := tr.Start(ctx, "Complete", trace.WithAttributes(attribute.String("ai.model", req.Model)))
	defer span.End()

	req.Stream = false
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	attempt := 0
	op := func() error {
		attempt++
		resp, err := c.do(ctx, req, "application/json")
		if err != nil {
			var se *StatusError
			if errors.Is(err, ErrNotConfigured) || (errors.As(err, &se) && se.Status < 500) {
				return backoff.Permanent(err)
			}
			log.Warn().Err(err).Str("model", req.Model).Int("attempt", attempt).Msg("upstream completion failed; retrying")
			return err
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode completion: %w", err)
		}
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.InitialRetryInterval
	expo.MaxElapsedTime = c.MaxRetryElapsed
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", err
	}
	span.SetAttributes(attribute.Int("ai.attempts", attempt))

	if len(out.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return out.Choices[0].Message.Content, nil
}

func (c *Client) do(ctx context.Context, body ChatRequest, accept string) (*http.Response, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Status: resp.StatusCode, Message: Summarize(raw)}
	}
	return resp, nil
}

// Summarize turns an error body into one short line. Structured JSON errors
// ({"error":{"message":..}}, {"error":".."}, {"message":".."}) yield their
// message; anything else is trimmed and truncated.
func Summarize(body []byte) string {
	var v struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &v) == nil {
		if len(v.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			var flat string
			switch {
			case json.Unmarshal(v.Error, &nested) == nil && nested.Message != "":
				return clip(nested.Message)
			case json.Unmarshal(v.Error, &flat) == nil && flat != "":
				return clip(flat)
			}
		}
		if v.Message != "" {
			return clip(v.Message)
		}
	}
	return clip(strings.Join(strings.Fields(string(body)), " "))
}

func clip(s string) string {
	const max = 200
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
