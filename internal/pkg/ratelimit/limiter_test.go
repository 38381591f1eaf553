package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestInMemoryLimiterEnforcesLimit(t *testing.T) {
	l := NewInMemory(time.Minute)

	for i := 0; i < 20; i++ {
		dec := l.Allow("admin-privileged:ops", 20)
		if !dec.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	dec := l.Allow("admin-privileged:ops", 20)
	if dec.Allowed {
		t.Fatalf("21st request should be rejected")
	}
	if dec.Count != 21 {
		t.Fatalf("expected count 21, got %d", dec.Count)
	}
	if dec.Remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", dec.Remaining)
	}
	if dec.RetryAfter(time.Now().UTC()) <= 0 {
		t.Fatalf("rejected decision should carry a positive retry-after")
	}
}

func TestInMemoryLimiterWindowReset(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := base
	l := NewInMemory(time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		l.Allow("k", 5)
	}
	if dec := l.Allow("k", 5); dec.Allowed {
		t.Fatalf("expected rejection at limit")
	}

	// Window anchored at the first request; one minute later it is fresh.
	now = base.Add(61 * time.Second)
	dec := l.Allow("k", 5)
	if !dec.Allowed {
		t.Fatalf("expected fresh window after reset, got count %d", dec.Count)
	}
	if dec.Count != 1 {
		t.Fatalf("expected count 1 in fresh window, got %d", dec.Count)
	}
}

func TestInMemoryLimiterKeysAreIndependent(t *testing.T) {
	l := NewInMemory(time.Minute)

	for i := 0; i < 3; i++ {
		l.Allow("client:a", 3)
	}
	if dec := l.Allow("client:a", 3); dec.Allowed {
		t.Fatalf("client a should be limited")
	}
	if dec := l.Allow("client:b", 3); !dec.Allowed {
		t.Fatalf("client b should not inherit a's count")
	}
}

func TestInMemoryLimiterConcurrentCounts(t *testing.T) {
	l := NewInMemory(time.Minute)
	const limit = 50
	const callers = 10
	const perCaller = 20 // 200 total across callers

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perCaller; i++ {
				if l.Allow("shared", limit).Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Fatalf("expected exactly %d allowed under contention, got %d", limit, allowed)
	}
}

func TestInMemoryLimiterCleansExpiredKeys(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := base
	l := NewInMemory(time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		l.Allow(fmt.Sprintf("k%d", i), 10)
	}
	now = base.Add(2 * time.Minute)
	l.Allow("fresh", 10)

	l.mu.Lock()
	size := len(l.items)
	l.mu.Unlock()
	if size != 1 {
		t.Fatalf("expired keys should be dropped, map still holds %d", size)
	}
}

func TestDecisionRetryAfterNeverNegative(t *testing.T) {
	d := Decision{ResetAt: time.Now().UTC().Add(-time.Second)}
	if got := d.RetryAfter(time.Now().UTC()); got != 0 {
		t.Fatalf("expected 0 for elapsed window, got %v", got)
	}
}
