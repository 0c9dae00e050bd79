// Package services holds the request-level business logic of the gateway:
// the chat relay and the recommendation generator. This file centralizes the
// service-level error values so that handlers can map them to HTTP results.
//
// Translation into user-facing messages or status codes is performed at the
// handler layer.
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/connectai-gateway/internal/domain"
)

var (
	// ErrInvalidConversation wraps the first conversation invariant violated.
	ErrInvalidConversation = errors.New("invalid conversation")

	// ErrRateLimited is returned when the caller's quota for the purpose is
	// exhausted. The concrete error is a *RateLimitError carrying RetryAfter.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUpstreamUnavailable means every upstream attempt failed with a
	// status other than 402/429, or with a network error.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamFormat means the upstream answered 2xx but the content
	// could not be used.
	ErrUpstreamFormat = errors.New("invalid upstream response")

	// ErrMissingGatewayKey is a server misconfiguration.
	ErrMissingGatewayKey = errors.New("gateway key not configured")
)

// RateLimitError is a quota rejection.
type RateLimitError struct {
	Purpose    domain.RateLimitPurpose
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s retry after %s", ErrRateLimited, e.Purpose, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// UpstreamError is a terminal upstream failure. Details is a short summary
// safe to show to callers; Err is the last attempt's error.
type UpstreamError struct {
	Details string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", ErrUpstreamUnavailable, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstreamUnavailable, e.Err} }
