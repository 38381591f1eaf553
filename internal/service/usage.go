package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// usageWindow is the trailing span volume ceilings are enforced over.
const usageWindow = 24 * time.Hour

// UsageTracker accumulates executed notional per client. The gateway
// projects place_order against WindowTotal before execution and adds to
// it after; the fill stream adds bot-originated volume through the same
// tracker, so both paths share one ceiling.
type UsageTracker interface {
	Add(ctx context.Context, clientID string, notional decimal.Decimal) error
	WindowTotal(ctx context.Context, clientID string) (decimal.Decimal, error)
}

// MemoryUsageTracker buckets notional by hour and sums the buckets that
// fall inside the trailing 24h. Granularity is the hour: a bucket drops
// out whole once its start leaves the window. Suspending a client does
// not touch its buckets; reactivation sees the prior volume.
type MemoryUsageTracker struct {
	mu      sync.RWMutex
	buckets map[string]map[int64]decimal.Decimal // clientID -> bucket start (unix) -> notional
	now     func() time.Time
}

func NewMemoryUsageTracker() *MemoryUsageTracker {
	return &MemoryUsageTracker{
		buckets: make(map[string]map[int64]decimal.Decimal),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (t *MemoryUsageTracker) Add(ctx context.Context, clientID string, notional decimal.Decimal) error {
	if notional.IsZero() {
		return nil
	}
	hour := t.now().Truncate(time.Hour).Unix()
	t.mu.Lock()
	defer t.mu.Unlock()
	hours, ok := t.buckets[clientID]
	if !ok {
		hours = make(map[int64]decimal.Decimal)
		t.buckets[clientID] = hours
	}
	hours[hour] = hours[hour].Add(notional)
	t.prune(clientID, hours)
	return nil
}

func (t *MemoryUsageTracker) WindowTotal(ctx context.Context, clientID string) (decimal.Decimal, error) {
	cutoff := t.now().Add(-usageWindow).Truncate(time.Hour).Unix()
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := decimal.Zero
	for start, notional := range t.buckets[clientID] {
		if start > cutoff {
			total = total.Add(notional)
		}
	}
	return total, nil
}

// prune drops buckets that can no longer contribute to any window.
// Caller holds the write lock.
func (t *MemoryUsageTracker) prune(clientID string, hours map[int64]decimal.Decimal) {
	cutoff := t.now().Add(-usageWindow - time.Hour).Unix()
	for start := range hours {
		if start < cutoff {
			delete(hours, start)
		}
	}
	if len(hours) == 0 {
		delete(t.buckets, clientID)
	}
}
