package service

import (
	"sync"
	"time"
)

const (
	defaultMaxAttempts     = 5
	defaultLockoutCooldown = 5 * time.Minute
)

// attemptLimiter tracks consecutive verification failures per key and locks
// the key out for a cooldown once the threshold is crossed. A success resets
// the counter, so the limit only ever applies to uninterrupted failure runs.
type attemptLimiter struct {
	max      int
	cooldown time.Duration

	mu      sync.Mutex
	entries map[string]*attemptEntry
}

type attemptEntry struct {
	failures    int
	lockedUntil time.Time
}

func newAttemptLimiter(max int, cooldown time.Duration) *attemptLimiter {
	if max <= 0 {
		max = defaultMaxAttempts
	}
	if cooldown <= 0 {
		cooldown = defaultLockoutCooldown
	}
	return &attemptLimiter{
		max:      max,
		cooldown: cooldown,
		entries:  make(map[string]*attemptEntry),
	}
}

// locked reports whether key is currently in cooldown.
func (l *attemptLimiter) locked(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return false
	}
	if e.lockedUntil.After(now) {
		return true
	}
	if !e.lockedUntil.IsZero() {
		// Cooldown elapsed, the key starts over with a clean slate.
		delete(l.entries, key)
	}
	return false
}

// fail records one failed attempt and reports whether the key just crossed
// the threshold and entered cooldown.
func (l *attemptLimiter) fail(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &attemptEntry{}
		l.entries[key] = e
	}
	e.failures++
	if e.failures >= l.max {
		e.failures = 0
		e.lockedUntil = now.Add(l.cooldown)
		return true
	}
	return false
}

// reset clears the failure history for key after a successful verification.
func (l *attemptLimiter) reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// sweep drops entries whose cooldown has elapsed and that carry no failures.
func (l *attemptLimiter) sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if e.failures == 0 && !e.lockedUntil.After(now) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}
