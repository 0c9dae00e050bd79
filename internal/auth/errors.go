// Package auth resolves bearer credentials to user identities and checks
// subscription entitlements. Every gateway entry point runs the Guard before
// doing any quota or model work.
package auth

import "errors"

var (
	// ErrUnauthorized means the credential is missing, malformed, or rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden means the user has no active, unexpired subscription.
	ErrForbidden = errors.New("invalid or expired subscription")

	// ErrPlanRequired means the subscription is valid but the feature needs a
	// different plan.
	ErrPlanRequired = errors.New("plan does not include this feature")
)
