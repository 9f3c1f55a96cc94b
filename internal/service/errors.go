package service

import (
	"errors"
)

// Typed business outcomes. This is the closed set callers above the
// orchestrator may branch on; store-level error internals never cross this
// boundary.
var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrCouponNotFound      = errors.New("coupon not found")
	ErrCouponExhausted     = errors.New("coupon has no uses left")
	ErrCouponExpired       = errors.New("coupon has expired")

	ErrInvalidKey         = errors.New("invalid credit key")
	ErrKeyAlreadyUsed     = errors.New("credit key already used")
	ErrKeyExpired         = errors.New("credit key expired")
	ErrKeyAccountMismatch = errors.New("credit key belongs to another account")

	ErrRequestStateInvalid = errors.New("credit request is not in a valid state for this operation")
	ErrAccountNotFound     = errors.New("account not found")

	// ErrConflictRetry surfaces after bounded optimistic-conflict retries
	// are exhausted. The caller may safely re-issue the request.
	ErrConflictRetry = errors.New("transient conflict, please retry")

	// ErrTrustedUnavailable marks the privileged callable as unreachable;
	// it is not terminal and triggers the local fallback path.
	ErrTrustedUnavailable = errors.New("trusted callable unavailable")
)

const conflictRetryLimit = 3
