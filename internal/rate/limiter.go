package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds login throttle tuning parameters.
type Config struct {
	EnableIPThrottle bool
	MaxAttempts      int
	Cooldown         time.Duration
}

// Limiter bounds failed credential checks per identity and per client IP
// using Redis fixed-window counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// acquireLua reserves one slot on KEYS[1] unless the counter already holds
// ARGV[1] attempts. The window (ARGV[2], ms) starts with the first slot.
//
// Returns 1 when reserved, 0 when the budget is exhausted.
var acquireLua = redis.NewScript(`
local n = tonumber(redis.call('GET', KEYS[1]) or '0')
if n >= tonumber(ARGV[1]) then
  return 0
end
if redis.call('INCR', KEYS[1]) == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// releaseLua gives back one slot on KEYS[1], deleting the counter when it
// would drop to zero so that no TTL-less key is left behind.
var releaseLua = redis.NewScript(`
local n = tonumber(redis.call('GET', KEYS[1]) or '0')
if n <= 1 then
  redis.call('DEL', KEYS[1])
else
  redis.call('DECR', KEYS[1])
end
return 1
`)

// Acquire reserves one attempt against the identity budget and, when
// enabled, the IP budget. The reservation is the failure count: callers
// Release it when the attempt did not fail and Reset after a success.
// Compare and increment happen in one script per counter, so concurrent
// attempts cannot overshoot MaxAttempts.
func (l *Limiter) Acquire(ctx context.Context, identity, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.acquire(ctx, identityKey(identity)); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.acquire(ctx, ipKey(ip)); err != nil {
			_ = l.release(ctx, identityKey(identity))
			return err
		}
	}

	return nil
}

// Release returns the slots taken by Acquire for an attempt that ended
// without a verdict, such as a store outage.
func (l *Limiter) Release(ctx context.Context, identity, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.release(ctx, identityKey(identity)); err != nil {
		return err
	}
	return l.releaseIP(ctx, ip)
}

// Reset clears the identity counter after a successful check and returns the
// IP slot. Earlier failures from the IP stay counted so that one good account
// cannot launder a sprayed IP.
func (l *Limiter) Reset(ctx context.Context, identity, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, identityKey(identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return l.releaseIP(ctx, ip)
}

func (l *Limiter) releaseIP(ctx context.Context, ip string) error {
	if !l.config.EnableIPThrottle || ip == "" {
		return nil
	}
	return l.release(ctx, ipKey(ip))
}

func (l *Limiter) acquire(ctx context.Context, key string) error {
	ok, err := acquireLua.Run(ctx, l.redis, []string{key},
		l.config.MaxAttempts, l.config.Cooldown.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ok == 0 {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) release(ctx context.Context, key string) error {
	if err := releaseLua.Run(ctx, l.redis, []string{key}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func identityKey(identity string) string {
	return "clf:" + identity
}

func ipKey(ip string) string {
	return "clfip:" + ip
}
