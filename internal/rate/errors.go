package rate

import "errors"

var (
	// ErrRateLimited is returned once an identity or IP exhausts its failure budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport failures talking to Redis.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
