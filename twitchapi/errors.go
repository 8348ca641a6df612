package twitchapi

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnauthorized indicates the bearer credential was rejected (expired or revoked).
// Callers should refresh the credential and retry.
var ErrUnauthorized = errors.New("twitch: unauthorized")

// RateLimitedError indicates the platform throttled the request. RetryAfter is the
// server-suggested wait before the next attempt (zero when the server gave none).
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("twitch: rate limited (retry after %s)", e.RetryAfter)
}

// IsRateLimited extracts a RateLimitedError from an error chain.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
