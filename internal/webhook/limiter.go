package webhook

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiters holds one token bucket per trigger: quota tokens, refilled continuously at quota
// per window. A burst that spends the quota is fully restored one window later, and single
// tokens come back in between.
type limiters struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter *rate.Limiter
	quota   int
	window  time.Duration
}

func newLimiters() *limiters {
	return &limiters{buckets: make(map[string]*bucket)}
}

func (l *limiters) get(triggerID string, quota int, window time.Duration) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[triggerID]
	if !ok || b.quota != quota || b.window != window {
		perSecond := float64(quota) / window.Seconds()
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(perSecond), quota), quota: quota, window: window}
		l.buckets[triggerID] = b
	}
	return b.limiter
}

// allow takes one token at now. A denied call takes nothing.
func (l *limiters) allow(triggerID string, quota int, window time.Duration, now time.Time) bool {
	return l.get(triggerID, quota, window).AllowN(now, 1)
}

// forget drops the bucket of a revoked trigger.
func (l *limiters) forget(triggerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, triggerID)
}
