// Package ratelimiter throttles failed authentication attempts with a
// sliding window plus a fixed lockout.
package ratelimiter

import (
	"sync"
	"time"
)

// attempt tracks the failure state for one identifier.
type attempt struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Limiter tolerates up to maxAttempts failures per identifier within a
// rolling window; reaching the limit locks the identifier out for a
// fixed duration. Safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	lockout     time.Duration
	attempts    map[string]*attempt
	now         func() time.Time
}

// New creates a Limiter. An identifier may fail maxAttempts times
// within window before being locked out for the lockout duration.
func New(maxAttempts int, window, lockout time.Duration) *Limiter {
	return &Limiter{
		maxAttempts: maxAttempts,
		window:      window,
		lockout:     lockout,
		attempts:    make(map[string]*attempt),
		now:         time.Now,
	}
}

// Allowed reports whether the identifier may attempt right now.
// Expired, non-locked entries are evicted on each call to bound memory.
func (l *Limiter) Allowed(identifier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictExpired(now)

	a, ok := l.attempts[identifier]
	if !ok {
		return true
	}

	if a.lockedUntil.After(now) {
		return false
	}

	if now.Sub(a.firstAttempt) > l.window {
		delete(l.attempts, identifier)
		return true
	}

	return a.count < l.maxAttempts
}

// RecordFailure counts a failed attempt. The attempt that reaches the
// limit starts the lockout.
func (l *Limiter) RecordFailure(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	a, ok := l.attempts[identifier]
	if !ok || now.Sub(a.firstAttempt) > l.window {
		l.attempts[identifier] = &attempt{count: 1, firstAttempt: now}
		return
	}

	a.count++
	if a.count >= l.maxAttempts {
		a.lockedUntil = now.Add(l.lockout)
	}
}

// RecordSuccess clears all recorded failures for the identifier.
func (l *Limiter) RecordSuccess(identifier string) {
	l.mu.Lock()
	delete(l.attempts, identifier)
	l.mu.Unlock()
}

// RemainingLockout returns how long the identifier stays locked out,
// or zero when it is not locked.
func (l *Limiter) RemainingLockout(identifier string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.attempts[identifier]
	if !ok {
		return 0
	}
	remaining := a.lockedUntil.Sub(l.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// evictExpired drops entries whose lockout has ended and whose window
// has elapsed. Must be called with the lock held.
func (l *Limiter) evictExpired(now time.Time) {
	for id, a := range l.attempts {
		if a.lockedUntil.Before(now) && now.Sub(a.firstAttempt) > l.window {
			delete(l.attempts, id)
		}
	}
}
