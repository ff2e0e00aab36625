package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResetRateLimited      = errors.New("reset rate limited")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

type PasswordResetConfig struct {
	EnableIdentityThrottle bool
	EnableIPThrottle       bool
	Window                 time.Duration
	MaxRequests            int
}

// PasswordResetLimiter caps how many reset links can be requested per
// identity and per client IP inside one fixed window.
type PasswordResetLimiter struct {
	redis  redis.UniversalClient
	config PasswordResetConfig
}

func NewPasswordResetLimiter(redisClient redis.UniversalClient, cfg PasswordResetConfig) *PasswordResetLimiter {
	return &PasswordResetLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckRequest counts one reset request. Unknown identities are counted too,
// so the limiter's answer never depends on whether the identity exists.
func (l *PasswordResetLimiter) CheckRequest(ctx context.Context, identity, ip string) error {
	if l == nil {
		return nil
	}
	if l.config.EnableIdentityThrottle {
		if err := l.enforceFixedWindow(ctx, requestIdentityKey(identity)); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, requestIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *PasswordResetLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
		}
	}

	if count > int64(l.config.MaxRequests) {
		return ErrResetRateLimited
	}

	return nil
}

func requestIdentityKey(identity string) string {
	return "crr:" + identity
}

func requestIPKey(ip string) string {
	return "crrip:" + ip
}
