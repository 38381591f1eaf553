package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisLimiter(t *testing.T, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, window), mr
}

func TestRedisLimiterEnforcesLimit(t *testing.T) {
	l, _ := newTestRedisLimiter(t, time.Minute)

	for i := 0; i < 20; i++ {
		if dec := l.Allow("admin-privileged:ops", 20); !dec.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	dec := l.Allow("admin-privileged:ops", 20)
	if dec.Allowed {
		t.Fatalf("21st request should be rejected")
	}
	if dec.Count != 21 {
		t.Fatalf("expected shared count 21, got %d", dec.Count)
	}
}

func TestRedisLimiterWindowExpires(t *testing.T) {
	l, mr := newTestRedisLimiter(t, time.Minute)

	for i := 0; i < 5; i++ {
		l.Allow("k", 5)
	}
	if dec := l.Allow("k", 5); dec.Allowed {
		t.Fatalf("expected rejection at limit")
	}

	mr.FastForward(61 * time.Second)

	dec := l.Allow("k", 5)
	if !dec.Allowed {
		t.Fatalf("expected fresh window after expiry, got count %d", dec.Count)
	}
	if dec.Count != 1 {
		t.Fatalf("expected count 1 after expiry, got %d", dec.Count)
	}
}

func TestRedisLimiterFallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l := NewRedis(client, time.Minute)

	mr.Close()

	// Enforcement survives the outage through the in-memory fallback.
	for i := 0; i < 3; i++ {
		if dec := l.Allow("k", 3); !dec.Allowed {
			t.Fatalf("fallback request %d should be allowed", i+1)
		}
	}
	if dec := l.Allow("k", 3); dec.Allowed {
		t.Fatalf("fallback should still enforce the limit")
	}
}

func TestRedisLimiterNilClientUsesFallback(t *testing.T) {
	l := NewRedis(nil, time.Minute)
	if dec := l.Allow("k", 1); !dec.Allowed {
		t.Fatalf("first request should pass on fallback")
	}
	if dec := l.Allow("k", 1); dec.Allowed {
		t.Fatalf("second request should be rejected on fallback")
	}
}
