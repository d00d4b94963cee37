package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", limit, window)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return limiter, mr
}

func TestFixedWindowLimiter(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, time.Second)
	if !limiter.Allow("owner-1") {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow("owner-1") {
		t.Fatalf("second request should pass")
	}
	if limiter.Allow("owner-1") {
		t.Fatalf("third request should be blocked")
	}
	if !limiter.Allow("owner-2") {
		t.Fatalf("separate key should have its own window")
	}
}

func TestFixedWindowLimiterFailsClosed(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Second)
	mr.Close()
	if limiter.Allow("owner-1") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterRequiresClient(t *testing.T) {
	if _, err := NewFixedWindowLimiter(nil, "test:ratelimit", 1, time.Second); err == nil {
		t.Fatalf("expected constructor error for nil client")
	}
}
