package rate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	return mr, New(rdb, cfg)
}

func counter(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	if !mr.Exists(key) {
		return ""
	}
	v, err := mr.Get(key)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return v
}

func TestLimiterBlocksAfterMaxFailures(t *testing.T) {
	mr, l := newTestLimiter(t, Config{MaxAttempts: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx, "a@x.com", ""); err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
	}

	if err := l.Acquire(ctx, "a@x.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if got := counter(t, mr, "clf:a@x.com"); got != "3" {
		t.Fatalf("rejected attempt must not advance the counter, got %q", got)
	}
	if err := l.Acquire(ctx, "b@x.com", ""); err != nil {
		t.Fatalf("expected other identity to be unaffected, got %v", err)
	}
}

func TestLimiterConcurrentAttemptsCannotOvershoot(t *testing.T) {
	mr, l := newTestLimiter(t, Config{MaxAttempts: 3, Cooldown: time.Minute})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
		limited atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := l.Acquire(ctx, "a@x.com", ""); {
			case err == nil:
				granted.Add(1)
			case errors.Is(err, ErrRateLimited):
				limited.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != 3 || limited.Load() != 17 {
		t.Fatalf("expected 3 granted and 17 limited, got %d and %d", granted.Load(), limited.Load())
	}
	if got := counter(t, mr, "clf:a@x.com"); got != "3" {
		t.Fatalf("expected counter to stop at 3, got %q", got)
	}
}

func TestLimiterWindowExpires(t *testing.T) {
	mr, l := newTestLimiter(t, Config{MaxAttempts: 1, Cooldown: time.Minute})
	ctx := context.Background()

	if err := l.Acquire(ctx, "a@x.com", ""); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := l.Acquire(ctx, "a@x.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if ttl := mr.TTL("clf:a@x.com"); ttl != time.Minute {
		t.Fatalf("expected window of 1m, got %v", ttl)
	}

	mr.FastForward(61 * time.Second)
	if err := l.Acquire(ctx, "a@x.com", ""); err != nil {
		t.Fatalf("expected window to reset, got %v", err)
	}
}

func TestLimiterIPThrottle(t *testing.T) {
	mr, l := newTestLimiter(t, Config{MaxAttempts: 2, Cooldown: time.Minute, EnableIPThrottle: true})
	ctx := context.Background()

	if err := l.Acquire(ctx, "a@x.com", "10.0.0.1"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := l.Acquire(ctx, "b@x.com", "10.0.0.1"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := l.Acquire(ctx, "c@x.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP budget to be exhausted, got %v", err)
	}
	if got := counter(t, mr, "clf:c@x.com"); got != "" {
		t.Fatalf("identity slot must be returned when the IP is limited, got %q", got)
	}
	if err := l.Acquire(ctx, "c@x.com", "10.0.0.2"); err != nil {
		t.Fatalf("expected other IP to pass, got %v", err)
	}
}

func TestLimiterReleaseReturnsSlots(t *testing.T) {
	mr, l := newTestLimiter(t, Config{MaxAttempts: 1, Cooldown: time.Minute, EnableIPThrottle: true})
	ctx := context.Background()

	if err := l.Acquire(ctx, "a@x.com", "10.0.0.1"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := l.Release(ctx, "a@x.com", "10.0.0.1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if mr.Exists("clf:a@x.com") || mr.Exists("clfip:10.0.0.1") {
		t.Fatal("released counters must be deleted, not left at zero")
	}
	if err := l.Acquire(ctx, "a@x.com", "10.0.0.1"); err != nil {
		t.Fatalf("expected budget to be available again, got %v", err)
	}

	// Releasing a counter that already expired must not leave a key behind.
	mr.FastForward(61 * time.Second)
	if err := l.Release(ctx, "a@x.com", "10.0.0.1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if mr.Exists("clf:a@x.com") || mr.Exists("clfip:10.0.0.1") {
		t.Fatal("release after expiry must not create counters")
	}
}

func TestLimiterResetClearsIdentityAndKeepsIPFailures(t *testing.T) {
	mr, l := newTestLimiter(t, Config{MaxAttempts: 5, Cooldown: time.Minute, EnableIPThrottle: true})
	ctx := context.Background()

	// Two failures, then a successful attempt.
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx, "a@x.com", "10.0.0.1"); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
	}
	if err := l.Reset(ctx, "a@x.com", "10.0.0.1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if mr.Exists("clf:a@x.com") {
		t.Fatal("expected identity counter cleared")
	}
	if got := counter(t, mr, "clfip:10.0.0.1"); got != "2" {
		t.Fatalf("expected IP to keep its 2 failures, got %q", got)
	}
}

func TestLimiterNilSafe(t *testing.T) {
	var l *Limiter
	ctx := context.Background()
	if err := l.Acquire(ctx, "a@x.com", "ip"); err != nil {
		t.Fatalf("nil limiter Acquire returned %v", err)
	}
	if err := l.Release(ctx, "a@x.com", "ip"); err != nil {
		t.Fatalf("nil limiter Release returned %v", err)
	}
	if err := l.Reset(ctx, "a@x.com", "ip"); err != nil {
		t.Fatalf("nil limiter Reset returned %v", err)
	}
}

func TestLimiterRedisDown(t *testing.T) {
	mr, l := newTestLimiter(t, Config{MaxAttempts: 1, Cooldown: time.Minute})
	mr.Close()

	if err := l.Acquire(context.Background(), "a@x.com", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
