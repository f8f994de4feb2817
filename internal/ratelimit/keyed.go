package ratelimit

import (
	"sync"
	"time"
)

type keyedEntry struct {
	limiter  *Limiter
	lastSeen time.Time
}

// Keyed hands out one Limiter per key, e.g. per client IP.
type Keyed struct {
	mu       sync.Mutex
	limiters map[string]*keyedEntry
	name     string
	rps      int
	burst    int
	now      func() time.Time
}

// NewKeyed creates a Keyed limiter with rps and burst applied to every key.
func NewKeyed(name string, rps, burst int) *Keyed {
	return &Keyed{
		limiters: make(map[string]*keyedEntry),
		name:     name,
		rps:      rps,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether key may proceed now.
func (k *Keyed) Allow(key string) bool {
	return k.get(key).Allow()
}

func (k *Keyed) get(key string) *Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.limiters[key]
	if !ok {
		entry = &keyedEntry{limiter: NewWithBurst(k.name, k.rps, k.burst)}
		k.limiters[key] = entry
	}
	entry.lastSeen = k.now()
	return entry.limiter
}

// Sweep drops limiters idle for longer than maxIdle and returns how many were removed.
func (k *Keyed) Sweep(maxIdle time.Duration) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	cutoff := k.now().Add(-maxIdle)
	removed := 0
	for key, entry := range k.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(k.limiters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}
