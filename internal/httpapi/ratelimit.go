package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// claimLimiter throttles upgrade claims per user.
type claimLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClaimLimiter(perMinute float64, burst int, ttl time.Duration) *claimLimiter {
	return &claimLimiter{
		visitors:  make(map[string]*visitor),
		rate:      rate.Limit(perMinute / 60),
		burst:     burst,
		ttl:       ttl,
		lastSweep: time.Now(),
	}
}

func (limiter *claimLimiter) Allow(key string) bool {
	now := time.Now()
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	if now.Sub(limiter.lastSweep) > limiter.ttl {
		for visitorKey, entry := range limiter.visitors {
			if now.Sub(entry.lastSeen) > limiter.ttl {
				delete(limiter.visitors, visitorKey)
			}
		}
		limiter.lastSweep = now
	}

	entry, exists := limiter.visitors[key]
	if !exists {
		entry = &visitor{limiter: rate.NewLimiter(limiter.rate, limiter.burst)}
		limiter.visitors[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
