// Package presence derives online/offline status from heartbeat
// observations. Status is computed lazily at read time rather than pushed
// on timers, so tracking N peers costs nothing between snapshot flushes.
package presence

import (
	"sync"
	"time"
)

// Tracker records the last-seen instant per user and answers liveness
// queries against a fixed window. The window must exceed twice the
// heartbeat cadence to tolerate a single dropped beat; config validation
// enforces that upstream.
type Tracker struct {
	window time.Duration

	mu       sync.RWMutex
	lastSeen map[string]time.Time
}

// NewTracker builds a tracker with the given liveness window.
func NewTracker(window time.Duration) *Tracker {
	return &Tracker{
		window:   window,
		lastSeen: make(map[string]time.Time),
	}
}

// Observe records a heartbeat or freshness signal. Stamps only move
// forward; an out-of-order or duplicate delivery never regresses the
// last-seen time.
func (t *Tracker) Observe(userID string, sentAt time.Time) {
	if userID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.lastSeen[userID]; ok && !sentAt.After(prev) {
		return
	}
	t.lastSeen[userID] = sentAt
}

// Online reports whether the user has been seen within the liveness
// window. A user with no recorded observation is offline.
func (t *Tracker) Online(userID string, now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	last, ok := t.lastSeen[userID]
	if !ok {
		return false
	}
	return now.Sub(last) < t.window
}

// LastSeen returns the recorded last-seen time, if any.
func (t *Tracker) LastSeen(userID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	last, ok := t.lastSeen[userID]
	return last, ok
}

// Window returns the configured liveness window.
func (t *Tracker) Window() time.Duration {
	return t.window
}
