package rate

import "errors"

var (
	// ErrRateLimited is returned when the sliding window is full.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport-level Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
