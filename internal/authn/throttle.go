package authn

import (
	"sync"
	"time"
)

// Throttle tracks failed signature verifications per certificate serial and
// locks a serial out after too many failures in a row.
type Throttle struct {
	maxFailures int
	duration    time.Duration
	failures    map[string]*throttleEntry
	mu          sync.RWMutex
}

type throttleEntry struct {
	count    int
	lockedAt time.Time
}

// NewThrottle creates a Throttle.
// maxFailures: failed verifications before lockout (0 = disabled)
// duration: how long the serial stays locked
func NewThrottle(maxFailures int, duration time.Duration) *Throttle {
	return &Throttle{
		maxFailures: maxFailures,
		duration:    duration,
		failures:    make(map[string]*throttleEntry),
	}
}

// IsLocked checks if a serial is currently locked out.
func (t *Throttle) IsLocked(serial string) bool {
	if t.maxFailures <= 0 {
		return false
	}

	t.mu.RLock()
	entry, exists := t.failures[serial]
	t.mu.RUnlock()

	if !exists {
		return false
	}
	return !entry.lockedAt.IsZero() && time.Since(entry.lockedAt) < t.duration
}

// RecordFailure records a failed verification and returns true if the serial
// is now locked.
func (t *Throttle) RecordFailure(serial string) bool {
	if t.maxFailures <= 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.failures[serial]
	if !exists {
		entry = &throttleEntry{}
		t.failures[serial] = entry
	}

	// A lock that has already run out starts a fresh count.
	if !entry.lockedAt.IsZero() && time.Since(entry.lockedAt) >= t.duration {
		entry.count = 0
		entry.lockedAt = time.Time{}
	}

	entry.count++

	if entry.count >= t.maxFailures {
		entry.lockedAt = time.Now()
		return true
	}
	return false
}

// RecordSuccess clears the failure count for a serial.
func (t *Throttle) RecordSuccess(serial string) {
	if t.maxFailures <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.failures, serial)
}

// LockRemaining returns the time until the serial unlocks, or 0 if unlocked.
func (t *Throttle) LockRemaining(serial string) time.Duration {
	if t.maxFailures <= 0 {
		return 0
	}

	t.mu.RLock()
	entry, exists := t.failures[serial]
	t.mu.RUnlock()

	if !exists || entry.lockedAt.IsZero() {
		return 0
	}

	remaining := t.duration - time.Since(entry.lockedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
