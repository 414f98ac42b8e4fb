package rate

import "errors"

var (
	// ErrRateLimited is returned once a subject has no attempts left.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
