package rate

import "errors"

var (
	// ErrRateLimited indicates the identifier or IP exhausted its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable indicates the limiter backend is unreachable.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
