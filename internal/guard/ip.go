package guard

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPLimiter keeps a token bucket per client key with idle expiry.
type IPLimiter struct {
	limit  rate.Limit
	burst  int
	mu     sync.Mutex
	store  map[string]*limiterEntry
	maxAge time.Duration

	// idle entries are dropped at most once per sweepEvery
	sweepEvery time.Duration
	lastSweep  time.Time
	now        func() time.Time
}

type limiterEntry struct {
	limiter *rate.Limiter
	updated time.Time
}

// NewIPLimiter allows reqPerSec sustained requests with the given burst per key.
func NewIPLimiter(reqPerSec float64, burst int) *IPLimiter {
	return &IPLimiter{
		limit:      rate.Limit(reqPerSec),
		burst:      burst,
		store:      make(map[string]*limiterEntry),
		maxAge:     10 * time.Minute,
		sweepEvery: time.Minute,
		lastSweep:  time.Now(),
		now:        time.Now,
	}
}

// Allow reports whether key may make another request now.
func (l *IPLimiter) Allow(key string) bool {
	return l.get(key).Allow()
}

func (l *IPLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.sweepEvery {
		for k, entry := range l.store {
			if now.Sub(entry.updated) > l.maxAge {
				delete(l.store, k)
			}
		}
		l.lastSweep = now
	}

	if entry, ok := l.store[key]; ok {
		entry.updated = now
		return entry.limiter
	}

	lim := rate.NewLimiter(l.limit, l.burst)
	l.store[key] = &limiterEntry{limiter: lim, updated: now}
	return lim
}
