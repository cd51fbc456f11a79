package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiter(t *testing.T, limit int) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := NewRedisFixedWindowLimiter(client, "test:ratelimit", limit, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	return limiter, mr
}

func TestFixedWindowLimiterRedis(t *testing.T) {
	limiter, _ := newRedisLimiter(t, 2)
	if !limiter.Allow("login:ip-1") {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow("login:ip-1") {
		t.Fatalf("second request should pass")
	}
	if limiter.Allow("login:ip-1") {
		t.Fatalf("third request should be blocked")
	}
	if !limiter.Allow("login:ip-2") {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterNextWindow(t *testing.T) {
	limiter, _ := newRedisLimiter(t, 1)
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	if !limiter.Allow("k") || limiter.Allow("k") {
		t.Fatalf("expected exactly one attempt in the first window")
	}
	now = now.Add(time.Minute)
	if !limiter.Allow("k") {
		t.Fatalf("a new window should reset the quota")
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	limiter, mr := newRedisLimiter(t, 1)
	mr.Close()
	if limiter.Allow("ip-1") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterRequiresClient(t *testing.T) {
	limiter, err := NewRedisFixedWindowLimiter(nil, "test:ratelimit", 1, time.Second)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for nil client")
	}
}
